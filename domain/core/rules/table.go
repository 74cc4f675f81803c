package rules

import e "linkgraph/domain/core/entities"

var (
	knowledge = []e.EntityType{e.EntityTypeDocument, e.EntityTypeWikiPage, e.EntityTypeLibraryDoc, e.EntityTypeLibrarySection}
	people    = []e.EntityType{e.EntityTypeUser, e.EntityTypeContact}
	owners    = []e.EntityType{e.EntityTypeUser, e.EntityTypeOrganization}
	threads   = []e.EntityType{e.EntityTypeMessage, e.EntityTypeThread}
)

func join(groups ...[]e.EntityType) []e.EntityType {
	var out []e.EntityType
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func types(ts ...e.EntityType) []e.EntityType { return ts }

// defaultRules is the built-in allow-list. Every type may also use relates
// towards any type and duplicates towards its own type.
func defaultRules() []Rule {
	rules := []Rule{
		// task
		{e.EntityTypeTask, e.LinkKindParentOf, types(e.EntityTypeTask)},
		{e.EntityTypeTask, e.LinkKindChildOf, types(e.EntityTypeTask, e.EntityTypeProject, e.EntityTypeRoadmapItem)},
		{e.EntityTypeTask, e.LinkKindDependsOn, types(e.EntityTypeTask, e.EntityTypeRoadmapItem)},
		{e.EntityTypeTask, e.LinkKindBlocks, types(e.EntityTypeTask, e.EntityTypeRoadmapItem)},
		{e.EntityTypeTask, e.LinkKindReferences, join(knowledge, threads)},
		{e.EntityTypeTask, e.LinkKindMentionedIn, join(threads, types(e.EntityTypeDocument, e.EntityTypeWikiPage))},
		{e.EntityTypeTask, e.LinkKindAttachedTo, types(e.EntityTypeProject, e.EntityTypeCampaign, e.EntityTypeRoadmapItem)},
		{e.EntityTypeTask, e.LinkKindAssignedTo, people},
		{e.EntityTypeTask, e.LinkKindTriggers, types(e.EntityTypeTask)},
		{e.EntityTypeTask, e.LinkKindCompletes, types(e.EntityTypeRoadmapItem, e.EntityTypeProject)},

		// project
		{e.EntityTypeProject, e.LinkKindParentOf, types(e.EntityTypeProject, e.EntityTypeTask)},
		{e.EntityTypeProject, e.LinkKindChildOf, types(e.EntityTypeProject, e.EntityTypeOrganization)},
		{e.EntityTypeProject, e.LinkKindDependsOn, types(e.EntityTypeProject)},
		{e.EntityTypeProject, e.LinkKindBlocks, types(e.EntityTypeProject)},
		{e.EntityTypeProject, e.LinkKindReferences, knowledge},
		{e.EntityTypeProject, e.LinkKindAttachedTo, types(e.EntityTypeCampaign, e.EntityTypeRoadmapItem)},
		{e.EntityTypeProject, e.LinkKindAssignedTo, types(e.EntityTypeUser)},
		{e.EntityTypeProject, e.LinkKindOwnedBy, owners},

		// contact
		{e.EntityTypeContact, e.LinkKindOwnedBy, types(e.EntityTypeUser)},
		{e.EntityTypeContact, e.LinkKindCollaboratesWith, people},
		{e.EntityTypeContact, e.LinkKindMentionedIn, join(threads, types(e.EntityTypeDocument))},
		{e.EntityTypeContact, e.LinkKindAttachedTo, types(e.EntityTypeOrganization, e.EntityTypeCampaign, e.EntityTypeProject)},

		// invoice
		{e.EntityTypeInvoice, e.LinkKindAttachedTo, types(e.EntityTypeContact, e.EntityTypeOrganization, e.EntityTypeProject)},
		{e.EntityTypeInvoice, e.LinkKindReferences, types(e.EntityTypeDocument, e.EntityTypeProduct, e.EntityTypeExpense, e.EntityTypePayment)},
		{e.EntityTypeInvoice, e.LinkKindOwnedBy, owners},
		{e.EntityTypeInvoice, e.LinkKindTriggers, types(e.EntityTypePayment)},

		// document
		{e.EntityTypeDocument, e.LinkKindParentOf, types(e.EntityTypeDocument)},
		{e.EntityTypeDocument, e.LinkKindChildOf, types(e.EntityTypeDocument, e.EntityTypeProject)},
		{e.EntityTypeDocument, e.LinkKindReferences, knowledge},
		{e.EntityTypeDocument, e.LinkKindAttachedTo, types(e.EntityTypeTask, e.EntityTypeProject, e.EntityTypeInvoice, e.EntityTypeContact, e.EntityTypeCampaign, e.EntityTypeExpense, e.EntityTypeMessage)},
		{e.EntityTypeDocument, e.LinkKindOwnedBy, owners},
		{e.EntityTypeDocument, e.LinkKindMentionedIn, threads},

		// wiki_page
		{e.EntityTypeWikiPage, e.LinkKindParentOf, types(e.EntityTypeWikiPage)},
		{e.EntityTypeWikiPage, e.LinkKindChildOf, types(e.EntityTypeWikiPage)},
		{e.EntityTypeWikiPage, e.LinkKindReferences, knowledge},
		{e.EntityTypeWikiPage, e.LinkKindMentionedIn, threads},
		{e.EntityTypeWikiPage, e.LinkKindOwnedBy, types(e.EntityTypeUser)},

		// user
		{e.EntityTypeUser, e.LinkKindCollaboratesWith, people},
		{e.EntityTypeUser, e.LinkKindOwnedBy, types(e.EntityTypeOrganization)},

		// organization
		{e.EntityTypeOrganization, e.LinkKindParentOf, types(e.EntityTypeOrganization)},
		{e.EntityTypeOrganization, e.LinkKindChildOf, types(e.EntityTypeOrganization)},
		{e.EntityTypeOrganization, e.LinkKindOwnedBy, types(e.EntityTypeUser)},

		// product
		{e.EntityTypeProduct, e.LinkKindReferences, types(e.EntityTypeDocument, e.EntityTypeLibraryDoc)},
		{e.EntityTypeProduct, e.LinkKindAttachedTo, types(e.EntityTypeCampaign, e.EntityTypeInvoice, e.EntityTypeRoadmapItem)},
		{e.EntityTypeProduct, e.LinkKindOwnedBy, owners},

		// campaign
		{e.EntityTypeCampaign, e.LinkKindParentOf, types(e.EntityTypeCampaign)},
		{e.EntityTypeCampaign, e.LinkKindChildOf, types(e.EntityTypeCampaign, e.EntityTypeProject)},
		{e.EntityTypeCampaign, e.LinkKindDependsOn, types(e.EntityTypeCampaign)},
		{e.EntityTypeCampaign, e.LinkKindTriggers, types(e.EntityTypeTask, e.EntityTypeMessage)},
		{e.EntityTypeCampaign, e.LinkKindReferences, types(e.EntityTypeDocument, e.EntityTypeProduct)},
		{e.EntityTypeCampaign, e.LinkKindOwnedBy, owners},

		// roadmap_item
		{e.EntityTypeRoadmapItem, e.LinkKindParentOf, types(e.EntityTypeRoadmapItem, e.EntityTypeTask)},
		{e.EntityTypeRoadmapItem, e.LinkKindChildOf, types(e.EntityTypeRoadmapItem, e.EntityTypeProject)},
		{e.EntityTypeRoadmapItem, e.LinkKindDependsOn, types(e.EntityTypeRoadmapItem, e.EntityTypeTask)},
		{e.EntityTypeRoadmapItem, e.LinkKindBlocks, types(e.EntityTypeRoadmapItem, e.EntityTypeTask)},
		{e.EntityTypeRoadmapItem, e.LinkKindReferences, knowledge},
		{e.EntityTypeRoadmapItem, e.LinkKindAssignedTo, types(e.EntityTypeUser)},
		{e.EntityTypeRoadmapItem, e.LinkKindOwnedBy, owners},

		// library_doc
		{e.EntityTypeLibraryDoc, e.LinkKindParentOf, types(e.EntityTypeLibrarySection)},
		{e.EntityTypeLibraryDoc, e.LinkKindReferences, knowledge},
		{e.EntityTypeLibraryDoc, e.LinkKindOwnedBy, owners},

		// library_section
		{e.EntityTypeLibrarySection, e.LinkKindParentOf, types(e.EntityTypeLibrarySection)},
		{e.EntityTypeLibrarySection, e.LinkKindChildOf, types(e.EntityTypeLibraryDoc, e.EntityTypeLibrarySection)},
		{e.EntityTypeLibrarySection, e.LinkKindReferences, knowledge},

		// message
		{e.EntityTypeMessage, e.LinkKindChildOf, types(e.EntityTypeThread)},
		{e.EntityTypeMessage, e.LinkKindReferences, join(knowledge, types(e.EntityTypeTask, e.EntityTypeProject))},
		{e.EntityTypeMessage, e.LinkKindAttachedTo, types(e.EntityTypeThread, e.EntityTypeTask, e.EntityTypeContact)},
		{e.EntityTypeMessage, e.LinkKindTriggers, types(e.EntityTypeTask)},

		// thread
		{e.EntityTypeThread, e.LinkKindParentOf, types(e.EntityTypeMessage)},
		{e.EntityTypeThread, e.LinkKindReferences, knowledge},
		{e.EntityTypeThread, e.LinkKindAttachedTo, types(e.EntityTypeTask, e.EntityTypeProject, e.EntityTypeContact, e.EntityTypeCampaign)},

		// expense
		{e.EntityTypeExpense, e.LinkKindAttachedTo, types(e.EntityTypeProject, e.EntityTypeInvoice)},
		{e.EntityTypeExpense, e.LinkKindReferences, types(e.EntityTypeDocument)},
		{e.EntityTypeExpense, e.LinkKindOwnedBy, types(e.EntityTypeUser)},

		// payment
		{e.EntityTypePayment, e.LinkKindCompletes, types(e.EntityTypeInvoice, e.EntityTypeExpense)},
		{e.EntityTypePayment, e.LinkKindAttachedTo, types(e.EntityTypeInvoice, e.EntityTypeExpense, e.EntityTypeContact)},
		{e.EntityTypePayment, e.LinkKindReferences, types(e.EntityTypeDocument)},
	}

	for _, t := range e.AllEntityTypes() {
		rules = append(rules, Rule{From: t, Kind: e.LinkKindDuplicates, Targets: types(t)})
	}
	return rules
}
