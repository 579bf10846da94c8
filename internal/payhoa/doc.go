// Package payhoa is a read-only client for the PayHOA accounting API.
//
// It owns the full session lifecycle (credential resolution, the CSRF +
// login handshake, on-disk persistence, invalidation after upstream
// rejection) and exposes typed queries over bank accounts, transactions,
// reports, and reconciliations.
//
// All monetary values are integer cents (Cents). Dollar strings exist only
// at presentation boundaries; nothing in this package does floating-point
// money arithmetic.
package payhoa
