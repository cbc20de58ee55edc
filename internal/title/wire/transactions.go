// Package wire holds the title contract's transaction names and JSON schema.
package wire

import (
	"fmt"
)

// Transactions names the contract's entry points. Deployments with renamed
// chaincode functions override them through configuration.
type Transactions struct {
	Create       string `yaml:"create"`
	Read         string `yaml:"read"`
	ReadAll      string `yaml:"read_all"`
	Update       string `yaml:"update"`
	Delete       string `yaml:"delete"`
	Transfer     string `yaml:"transfer"`
	Exists       string `yaml:"exists"`
	ByOwner      string `yaml:"by_owner"`
	Authenticity string `yaml:"authenticity"`
	History      string `yaml:"history"`
}

// DefaultTransactions matches the deployed title chaincode.
func DefaultTransactions() Transactions {
	return Transactions{
		Create:       "creerFichier",
		Read:         "ReadTitreFoncier",
		ReadAll:      "GetAllTitresFonciers",
		Update:       "UpdateTitreFoncier",
		Delete:       "DeleteTitreFoncier",
		Transfer:     "TransferTitreFoncier",
		Exists:       "titreFoncierExists",
		ByOwner:      "GetTitresFonciersByProprietaire",
		Authenticity: "VerifierAuthenticiteTitreFoncier",
		History:      "GetHistoriqueTitreFoncier",
	}
}

// WithDefaults fills empty names from DefaultTransactions.
func (t Transactions) WithDefaults() Transactions {
	d := DefaultTransactions()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&t.Create, d.Create)
	fill(&t.Read, d.Read)
	fill(&t.ReadAll, d.ReadAll)
	fill(&t.Update, d.Update)
	fill(&t.Delete, d.Delete)
	fill(&t.Transfer, d.Transfer)
	fill(&t.Exists, d.Exists)
	fill(&t.ByOwner, d.ByOwner)
	fill(&t.Authenticity, d.Authenticity)
	fill(&t.History, d.History)
	return t
}

// Names lists every configured transaction name.
func (t Transactions) Names() []string {
	return []string{
		t.Create, t.Read, t.ReadAll, t.Update, t.Delete,
		t.Transfer, t.Exists, t.ByOwner, t.Authenticity, t.History,
	}
}

// Validate rejects duplicate names, which would route two operations to one
// contract function.
func (t Transactions) Validate() error {
	seen := make(map[string]bool)
	for _, name := range t.Names() {
		if name == "" {
			return fmt.Errorf("transaction name is empty")
		}
		if seen[name] {
			return fmt.Errorf("transaction name %q is used twice", name)
		}
		seen[name] = true
	}
	return nil
}
