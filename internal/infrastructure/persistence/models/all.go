package models

// All returns every ledger model, in dependency order, for AutoMigrate in tests.
// Production schemas are managed by the SQL migrations.
func All() []any {
	return []any{
		&AccountModel{},
		&PaymentReferenceModel{},
		&VerificationRequestModel{},
		&ReferralEdgeModel{},
		&CommissionEventModel{},
		&VestingScheduleModel{},
		&VestingReleaseModel{},
		&SettingModel{},
	}
}
