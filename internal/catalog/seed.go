package catalog

// SeedReferenceCatalog loads the default reference dataset. Deployments with
// an externally managed catalog skip this and point the engine at their own
// store.
func SeedReferenceCatalog(s *InMemory) {
	items := []Item{
		{Kind: KindBaseline, Code: "SAMA-CSF", Name: "SAMA Cyber Security Framework"},
		{Kind: KindBaseline, Code: "PCI-DSS", Name: "Payment Card Industry Data Security Standard"},
		{Kind: KindBaseline, Code: "ISO-27001", Name: "ISO/IEC 27001 Information Security Management"},
		{Kind: KindBaseline, Code: "NCA-ECC", Name: "NCA Essential Cybersecurity Controls"},
		{Kind: KindBaseline, Code: "PDPL", Name: "Personal Data Protection Law Baseline"},
		{Kind: KindBaseline, Code: "GDPR", Name: "General Data Protection Regulation Baseline"},

		{Kind: KindPackage, Code: "CLOUD-SEC", Name: "Cloud Security Control Package"},
		{Kind: KindPackage, Code: "TPRM", Name: "Third-Party Risk Management Package"},
		{Kind: KindPackage, Code: "BCM", Name: "Business Continuity Management Package"},
		{Kind: KindPackage, Code: "IR-CORE", Name: "Incident Response Core Package"},

		{Kind: KindTemplate, Code: "ISP-DOC", Name: "Information Security Policy Template"},
		{Kind: KindTemplate, Code: "DPIA-DOC", Name: "Data Protection Impact Assessment Template"},
		{Kind: KindTemplate, Code: "RA-DOC", Name: "Risk Assessment Report Template"},
	}
	for i := range items {
		s.Put(&items[i])
	}
}
