package schema

// Models 需要迁移的全部表
func Models() []any {
	return []any{
		&SchemaMeta{},
		&User{},
		&LevelDefinition{},
		&Site{},
		&AffinityGroup{},
		&SiteAffinity{},
		&VisitEvent{},
		&AggregateCounter{},
		&CatalogEntry{},
		&TitleTemplate{},
		&TitleGrant{},
		&ActivityLog{},
		&HarvestMarker{},
		&UserAbility{},
		&UserEntitlement{},
	}
}
