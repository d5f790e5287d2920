package models

import "strings"

// SectionName identifies a canonical 10-K item.
type SectionName string

const (
	SectionBusiness            SectionName = "item_1_business"
	SectionRiskFactors         SectionName = "item_1a_risk_factors"
	SectionUnresolvedComments  SectionName = "item_1b_unresolved_staff_comments"
	SectionCybersecurity       SectionName = "item_1c_cybersecurity"
	SectionProperties          SectionName = "item_2_properties"
	SectionLegalProceedings    SectionName = "item_3_legal_proceedings"
	SectionMineSafety          SectionName = "item_4_mine_safety"
	SectionMarket              SectionName = "item_5_market"
	SectionReserved            SectionName = "item_6_reserved"
	SectionMDA                 SectionName = "item_7_mda"
	SectionMarketRisk          SectionName = "item_7a_market_risk"
	SectionFinancialStatements SectionName = "item_8_financial_statements"
	SectionAccountantChanges   SectionName = "item_9_accountant_changes"
	SectionControls            SectionName = "item_9a_controls"
	SectionOtherInformation    SectionName = "item_9b_other_information"
	SectionForeignInspections  SectionName = "item_9c_foreign_jurisdictions"
	SectionDirectors           SectionName = "item_10_directors"
	SectionCompensation        SectionName = "item_11_compensation"
	SectionOwnership           SectionName = "item_12_ownership"
	SectionRelationships       SectionName = "item_13_relationships"
	SectionAccountantFees      SectionName = "item_14_accountant_fees"
	SectionExhibits            SectionName = "item_15_exhibits"
	SectionSummary             SectionName = "item_16_summary"
)

// SectionDefinition ties a registry name to its item label and title.
// Rank is the position in the standard 10-K item ordering.
type SectionDefinition struct {
	Name  SectionName
	Item  string // "1", "1A", "7A", ...
	Title string
	Rank  int
}

// SectionDefinitions lists every 10-K item in canonical order.
var SectionDefinitions = []SectionDefinition{
	{SectionBusiness, "1", "Business", 0},
	{SectionRiskFactors, "1A", "Risk Factors", 1},
	{SectionUnresolvedComments, "1B", "Unresolved Staff Comments", 2},
	{SectionCybersecurity, "1C", "Cybersecurity", 3},
	{SectionProperties, "2", "Properties", 4},
	{SectionLegalProceedings, "3", "Legal Proceedings", 5},
	{SectionMineSafety, "4", "Mine Safety Disclosures", 6},
	{SectionMarket, "5", "Market for Common Equity", 7},
	{SectionReserved, "6", "Reserved", 8}, // Selected Financial Data before Feb 2021
	{SectionMDA, "7", "MD&A", 9},
	{SectionMarketRisk, "7A", "Market Risk", 10},
	{SectionFinancialStatements, "8", "Financial Statements", 11},
	{SectionAccountantChanges, "9", "Changes in and Disagreements with Accountants", 12},
	{SectionControls, "9A", "Controls and Procedures", 13},
	{SectionOtherInformation, "9B", "Other Information", 14},
	{SectionForeignInspections, "9C", "Disclosure Regarding Foreign Jurisdictions", 15},
	{SectionDirectors, "10", "Directors and Governance", 16},
	{SectionCompensation, "11", "Executive Compensation", 17},
	{SectionOwnership, "12", "Security Ownership", 18},
	{SectionRelationships, "13", "Related Transactions", 19},
	{SectionAccountantFees, "14", "Accountant Fees", 20},
	{SectionExhibits, "15", "Exhibits and Schedules", 21},
	{SectionSummary, "16", "Form 10-K Summary", 22},
}

var (
	sectionsByItem = make(map[string]SectionDefinition, len(SectionDefinitions))
	sectionsByName = make(map[SectionName]SectionDefinition, len(SectionDefinitions))
)

func init() {
	for _, def := range SectionDefinitions {
		sectionsByItem[def.Item] = def
		sectionsByName[def.Name] = def
	}
}

// LookupItem resolves an item label such as "1a" or "7" to its definition.
func LookupItem(item string) (SectionDefinition, bool) {
	def, ok := sectionsByItem[strings.ToUpper(strings.TrimSpace(item))]
	return def, ok
}

// LookupSection returns the definition for a registry name.
func LookupSection(name SectionName) (SectionDefinition, bool) {
	def, ok := sectionsByName[name]
	return def, ok
}

// Valid reports whether the name belongs to the registry.
func (n SectionName) Valid() bool {
	_, ok := sectionsByName[n]
	return ok
}

// Rank returns the canonical ordering position, or -1 for unknown names.
func (n SectionName) Rank() int {
	if def, ok := sectionsByName[n]; ok {
		return def.Rank
	}
	return -1
}

// DefaultExpectedSections are the sections every complete parse must contain.
var DefaultExpectedSections = []SectionName{SectionBusiness, SectionRiskFactors, SectionMDA}
