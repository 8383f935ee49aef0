// Package domain defines the core interfaces and types for Kestrel.
package domain

// ComplianceFramework identifies one regulatory or standards domain.
// Frameworks are immutable identifiers used as map keys throughout the engine.
type ComplianceFramework string

const (
	// FrameworkTaxAuthority covers tax-authority e-invoicing and filing rules.
	FrameworkTaxAuthority ComplianceFramework = "tax_authority"

	// FrameworkEntityRegistry covers business registration / entity identifier rules.
	FrameworkEntityRegistry ComplianceFramework = "entity_registry"

	// FrameworkEInvoicing covers the international e-invoicing document standard.
	FrameworkEInvoicing ComplianceFramework = "e_invoicing"

	// FrameworkDataProtection covers personal-data protection law.
	FrameworkDataProtection ComplianceFramework = "data_protection"

	// FrameworkTradeStandard covers international trade message standards.
	FrameworkTradeStandard ComplianceFramework = "trade_standard"
)

// AllFrameworks returns every framework known to the engine.
func AllFrameworks() []ComplianceFramework {
	return []ComplianceFramework{
		FrameworkTaxAuthority,
		FrameworkEntityRegistry,
		FrameworkEInvoicing,
		FrameworkDataProtection,
		FrameworkTradeStandard,
	}
}

// IsInternational reports whether the framework is an international standard.
// Requesting an international framework adds the synthetic "international"
// jurisdiction during framework selection.
func (f ComplianceFramework) IsInternational() bool {
	return f == FrameworkEInvoicing || f == FrameworkTradeStandard
}

// Valid reports whether the framework is a known identifier.
func (f ComplianceFramework) Valid() bool {
	switch f {
	case FrameworkTaxAuthority, FrameworkEntityRegistry, FrameworkEInvoicing,
		FrameworkDataProtection, FrameworkTradeStandard:
		return true
	}
	return false
}
