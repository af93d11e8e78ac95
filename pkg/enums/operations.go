package enums

import "fmt"

// DriverAssignmentKind says which leg of the trip a driver was assigned to.
type DriverAssignmentKind string

const (
	DriverAssignmentPickup   DriverAssignmentKind = "pickup"
	DriverAssignmentDelivery DriverAssignmentKind = "delivery"
)

// IsValid reports whether the value is a known DriverAssignmentKind.
func (k DriverAssignmentKind) IsValid() bool {
	return k == DriverAssignmentPickup || k == DriverAssignmentDelivery
}

// ParseDriverAssignmentKind converts raw input into a DriverAssignmentKind.
func ParseDriverAssignmentKind(value string) (DriverAssignmentKind, error) {
	k := DriverAssignmentKind(value)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid driver assignment kind %q", value)
	}
	return k, nil
}

// ProcessingStage names a facility step recorded against an order.
type ProcessingStage string

const (
	ProcessingStageSorting  ProcessingStage = "sorting"
	ProcessingStageWashing  ProcessingStage = "washing"
	ProcessingStageDrying   ProcessingStage = "drying"
	ProcessingStageIroning  ProcessingStage = "ironing"
	ProcessingStageDryClean ProcessingStage = "dry_cleaning"
	ProcessingStageFolding  ProcessingStage = "folding"
	ProcessingStagePacking  ProcessingStage = "packing"
)

var validProcessingStages = []ProcessingStage{
	ProcessingStageSorting,
	ProcessingStageWashing,
	ProcessingStageDrying,
	ProcessingStageIroning,
	ProcessingStageDryClean,
	ProcessingStageFolding,
	ProcessingStagePacking,
}

// IsValid reports whether the value is a known ProcessingStage.
func (s ProcessingStage) IsValid() bool {
	for _, candidate := range validProcessingStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseProcessingStage converts raw input into a ProcessingStage.
func ParseProcessingStage(value string) (ProcessingStage, error) {
	for _, candidate := range validProcessingStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid processing stage %q", value)
}

// IssueSeverity ranks reported order issues.
type IssueSeverity string

const (
	IssueSeverityLow      IssueSeverity = "low"
	IssueSeverityMedium   IssueSeverity = "medium"
	IssueSeverityHigh     IssueSeverity = "high"
	IssueSeverityCritical IssueSeverity = "critical"
)

var validIssueSeverities = []IssueSeverity{
	IssueSeverityLow,
	IssueSeverityMedium,
	IssueSeverityHigh,
	IssueSeverityCritical,
}

// IsValid reports whether the value is a known IssueSeverity.
func (s IssueSeverity) IsValid() bool {
	for _, candidate := range validIssueSeverities {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseIssueSeverity converts raw input into an IssueSeverity.
func ParseIssueSeverity(value string) (IssueSeverity, error) {
	for _, candidate := range validIssueSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid issue severity %q", value)
}

// IssueType categorizes a reported order issue.
type IssueType string

const (
	IssueTypeDamagedItem  IssueType = "damaged_item"
	IssueTypeMissingItem  IssueType = "missing_item"
	IssueTypeStain        IssueType = "stain_not_removed"
	IssueTypeLateDelivery IssueType = "late_delivery"
	IssueTypeOther        IssueType = "other"
)

var validIssueTypes = []IssueType{
	IssueTypeDamagedItem,
	IssueTypeMissingItem,
	IssueTypeStain,
	IssueTypeLateDelivery,
	IssueTypeOther,
}

// IsValid reports whether the value is a known IssueType.
func (t IssueType) IsValid() bool {
	for _, candidate := range validIssueTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseIssueType converts raw input into an IssueType.
func ParseIssueType(value string) (IssueType, error) {
	for _, candidate := range validIssueTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid issue type %q", value)
}
