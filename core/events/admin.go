package events

import "escrowd/crypto"

const (
	TypePaused   = "admin.paused"
	TypeUnpaused = "admin.unpaused"
)

type Paused struct {
	Account crypto.Address
}

func (Paused) EventType() string { return TypePaused }

func (e Paused) Record() Record {
	return Record{Type: TypePaused, Attributes: map[string]string{"account": e.Account.String()}}
}

type Unpaused struct {
	Account crypto.Address
}

func (Unpaused) EventType() string { return TypeUnpaused }

func (e Unpaused) Record() Record {
	return Record{Type: TypeUnpaused, Attributes: map[string]string{"account": e.Account.String()}}
}
