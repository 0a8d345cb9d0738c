// Package bankaccount is a small sample domain built on the aggregate, repository and command packages.
//
// An Account is opened with an owner and an opening balance and is then debited and credited. Cards
// issued for an account are entities inside the aggregate: CardIssued is an account event that creates
// and associates the card, CardLimitChanged and CardBlocked are addressed to the card itself.
//
// The command handlers follow the Load, Decide, Save cycle. They load the account with strong
// consistency, call one domain method and save with the version the account was loaded at, so two
// handlers racing on the same account end with one eventstore.ErrConcurrencyConflict.
package bankaccount
