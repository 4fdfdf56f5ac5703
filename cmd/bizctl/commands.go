package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/bizmarket/internal/client"
)

type command struct {
	name string
	help string
	run  func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"signup", "create account and sign in", signUp},
	{"signin", "sign in with email and password", signIn},
	{"signout", "forget the session", signOut},
	{"forgot-password", "request password reset link", forgotPassword},
	{"reset-password", "set new password with reset token", resetPassword},
	{"verify", "check that session token is valid", verify},
	{"me", "show signed in user", me},
	{"change-password", "change password of signed in user", changePassword},
	{"delete-account", "delete signed in user", deleteAccount},
}

func findCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func commandFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("bizctl "+name, pflag.ContinueOnError)
}

func printUser(a *app, user client.User) {
	fmt.Fprintf(a.out, "id:      %d\n", user.ID)
	fmt.Fprintf(a.out, "name:    %s\n", strings.TrimSpace(user.FirstName+" "+user.LastName))
	fmt.Fprintf(a.out, "email:   %s\n", user.Email)
	if !user.CreatedAt.IsZero() {
		fmt.Fprintf(a.out, "created: %s\n", user.CreatedAt.Format(time.RFC3339))
	}
}

func signUp(ctx context.Context, a *app, args []string) error {
	fs := commandFlags("signup")
	firstName := fs.String("firstname", "", "First name")
	lastName := fs.String("lastname", "", "Last name")
	email := fs.String("email", "", "Email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	params := client.SignUpParams{}
	if params.FirstName, err = a.prompt.LineOr(*firstName, "First name"); err != nil {
		return err
	}
	if params.LastName, err = a.prompt.LineOr(*lastName, "Last name"); err != nil {
		return err
	}
	if params.Email, err = a.prompt.LineOr(*email, "Email"); err != nil {
		return err
	}
	if params.Password, err = a.prompt.Password("Password"); err != nil {
		return err
	}

	user, err := a.client.SignUp(ctx, params)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Signed up")
	printUser(a, user)
	return nil
}

func signIn(ctx context.Context, a *app, args []string) error {
	fs := commandFlags("signin")
	emailFlag := fs.String("email", "", "Email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	email, err := a.prompt.LineOr(*emailFlag, "Email")
	if err != nil {
		return err
	}
	password, err := a.prompt.Password("Password")
	if err != nil {
		return err
	}

	user, err := a.client.SignIn(ctx, email, password)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Signed in as %s\n", user.Email)
	return nil
}

func signOut(_ context.Context, a *app, _ []string) error {
	if err := a.client.SignOut(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func forgotPassword(ctx context.Context, a *app, args []string) error {
	fs := commandFlags("forgot-password")
	emailFlag := fs.String("email", "", "Email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	email, err := a.prompt.LineOr(*emailFlag, "Email")
	if err != nil {
		return err
	}
	if err := a.client.ForgotPassword(ctx, email); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "If the email is registered, a password reset link has been sent")
	return nil
}

func resetPassword(ctx context.Context, a *app, args []string) error {
	fs := commandFlags("reset-password")
	tokenFlag := fs.String("token", "", "Reset token from the link")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := a.prompt.LineOr(*tokenFlag, "Reset token")
	if err != nil {
		return err
	}
	password, err := a.prompt.Password("New password")
	if err != nil {
		return err
	}
	if err := a.client.ResetPassword(ctx, token, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Password has been reset, sign in with the new password")
	return nil
}

func verify(ctx context.Context, a *app, _ []string) error {
	user, expiresAt, err := a.client.VerifyToken(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Token is valid for %s until %s\n", user.Email, expiresAt.Format(time.RFC3339))
	return nil
}

func me(ctx context.Context, a *app, _ []string) error {
	user, err := a.client.Me(ctx)
	if err != nil {
		return err
	}

	printUser(a, user)
	return nil
}

func changePassword(ctx context.Context, a *app, _ []string) error {
	current, err := a.prompt.Password("Current password")
	if err != nil {
		return err
	}
	password, err := a.prompt.Password("New password")
	if err != nil {
		return err
	}
	if err := a.client.ChangePassword(ctx, current, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Password changed")
	return nil
}

func deleteAccount(ctx context.Context, a *app, args []string) error {
	fs := commandFlags("delete-account")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*yes {
		answer, err := a.prompt.Line("Type 'delete' to delete the account")
		if err != nil {
			return err
		}
		if answer != "delete" {
			return errors.New("not confirmed")
		}
	}

	if err := a.client.DeleteAccount(ctx); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Account deleted")
	return nil
}
