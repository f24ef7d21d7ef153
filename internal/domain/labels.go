package domain

// Label keys set by ephemera on every fixture container.
const (
	LabelManaged = "ephemera.managed-by"
	LabelFixture = "ephemera.fixture"
	LabelImage   = "ephemera.image"

	// ManagedByValue is the value of LabelManaged.
	ManagedByValue = "ephemera"
)
