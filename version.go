package smarthealth

import "regexp"

// Spec URIs and constants shared across packages.
const (
	// HealthCardType is the VC type URI every SMART Health Card carries.
	HealthCardType = "https://smarthealth.cards#health-card"

	// ImmunizationType is the optional VC type URI for immunization cards.
	ImmunizationType = "https://smarthealth.cards#immunization"

	// LaboratoryType is the optional VC type URI for laboratory cards.
	LaboratoryType = "https://smarthealth.cards#laboratory"

	// DefaultFHIRVersion is the FHIR release credentials default to.
	DefaultFHIRVersion = "4.0.1"

	// MIMETypeSmartHealthCard is the media type of SHC files.
	MIMETypeSmartHealthCard = "application/smart-health-card"

	// MIMETypeFHIRJSON is the media type of raw FHIR resources.
	MIMETypeFHIRJSON = "application/fhir+json"
)

// fhirVersionPattern matches a three-part semantic FHIR version.
var fhirVersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidFHIRVersion reports whether v is a well-formed FHIR version string
// such as "4.0.1".
func ValidFHIRVersion(v string) bool {
	return fhirVersionPattern.MatchString(v)
}

// SupportedContentTypes lists the media types a SMART Health Link file
// may carry.
var SupportedContentTypes = []string{
	MIMETypeSmartHealthCard,
	MIMETypeFHIRJSON,
}

// SupportedContentType reports whether ct is a media type the library
// can carry inside a SMART Health Link.
func SupportedContentType(ct string) bool {
	for _, s := range SupportedContentTypes {
		if s == ct {
			return true
		}
	}
	return false
}
