package models

// All lists every persisted model, in dependency order, for sqlite auto-migration.
func All() []any {
	return []any{
		&Balance{},
		&LedgerEntry{},
		&SettlementMarker{},
		&Order{},
		&ReferralApplication{},
		&AffiliateLink{},
		&AffiliateClick{},
		&AffiliateConversion{},
		&ReferredCustomer{},
		&RewardCounter{},
		&RewardCounterEntry{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
