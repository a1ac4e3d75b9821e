/*
Package authsdk provides a client for the Passage account service.

# Overview

A Client talks to the public endpoints: registration, email verification,
login and the password reset flow. A successful login returns a Session,
which carries the bearer token for the signed-in device and exposes the
authenticated operations.

	client := authsdk.NewClient("https://auth.example.com")

	// Register, then follow the emailed link.
	user, err := client.Register(ctx, "ada@example.com", "correct horse")
	err = client.Verify(ctx, slug)

	// Sign in on this device.
	session, err := client.Login(ctx, "ada@example.com", "correct horse")
	me, err := session.Me(ctx)

	// Sign out here, or everywhere.
	err = session.Logout(ctx)
	err = session.LogoutAll(ctx)

# Password Reset

	err = client.RequestPasswordReset(ctx, email)
	err = client.AuthenticatePasswordReset(ctx, email, slug)
	err = client.CompletePasswordReset(ctx, email, newPassword)

# Error Handling

Every non-2xx response is decoded into an *APIError. Callers branch on
its Code, or use the helpers:

	session, err := client.Login(ctx, email, password)
	if authsdk.IsUnauthorized(err) {
		// wrong password, locked out or not verified
	}

Validation failures carry per-field messages in APIError.Fields.

# Thread Safety

Clients and Sessions are safe for concurrent use.
*/
package authsdk
