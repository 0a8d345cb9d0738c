// Package aggregate provides the event-application core that concrete event-sourced aggregates embed.
//
// A concrete aggregate embeds Root and hands it an Applier, usually the aggregate itself, which
// mutates state with an explicit switch over the closed set of event types it knows:
//
//	type Account struct {
//		aggregate.Root
//		balance int64
//	}
//
//	func NewAccount(id uuid.UUID) *Account {
//		a := &Account{}
//		a.Root = aggregate.NewRoot(id, "BankAccount", a)
//		return a
//	}
//
//	func (a *Account) Apply(event aggregate.DomainEvent) error {
//		switch e := event.(type) {
//		case *AccountCredited:
//			a.balance += e.Amount
//		default:
//			return aggregate.ErrApplyNotSupported
//		}
//		return nil
//	}
//
// Domain methods validate their input and then call ApplyEvent with a new event. Root assigns the
// sequence and the event date, routes entity-scoped events to the associated Entity and buffers the
// event until the repository persisted it. Loading replays stored events with ReplayEvents, which
// neither stamps nor buffers.
package aggregate
