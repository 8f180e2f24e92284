// Package errors provides coded, user-facing errors for the paramsd
// command.
//
// Library packages return plain Go errors. The command converts them at the
// edge with FromError, which assigns a stable code and an explanation:
//
//	if err := run(); err != nil {
//	    errors.Fprint(os.Stderr, errors.FromError(err, errors.CodeServer))
//	    os.Exit(1)
//	}
//
// # Error Codes
//
//   - P001-P009: Parameter errors (lookup, conversion)
//   - P010-P019: Configuration errors
//   - P020-P029: CLI errors
//   - P030-P039: Session errors
//   - P040-P049: Server errors
package errors
