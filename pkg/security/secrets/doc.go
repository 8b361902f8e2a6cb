/*
Package secrets resolves the passwords that unlock key and trust stores.

A password can be supplied three ways: inline in the configuration, through an
environment variable, or through a file (Kubernetes-style secret mounts). A
Reference names all three; Resolve picks the first one that is set, in the
order file, environment, inline.

# Basic Usage

	ref := secrets.Reference{
		Value: cfg.Password,
		File:  cfg.PasswordFile,
		Env:   cfg.PasswordEnv,
	}
	password, err := secrets.Resolve(ctx, ref)

File secrets have a single trailing newline removed so that files written by
"echo secret > file" work as expected. Leading and inner whitespace is kept.
Files readable by group or others are accepted but logged as a warning unless
the FileProvider is created in strict mode.
*/
package secrets
