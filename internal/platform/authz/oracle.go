package authz

import "context"

// RelationshipOracle answers therapist/patient relationship questions against
// the authoritative profile store. Implementations must not cache: every call
// reads the current patient record. The argument order is significant, the
// lookup always goes through the patient's therapist list.
type RelationshipOracle interface {
	IsTherapistOfPatient(ctx context.Context, therapistID, patientID string) (bool, error)
}

// OracleFunc adapts a function to RelationshipOracle.
type OracleFunc func(ctx context.Context, therapistID, patientID string) (bool, error)

func (f OracleFunc) IsTherapistOfPatient(ctx context.Context, therapistID, patientID string) (bool, error) {
	return f(ctx, therapistID, patientID)
}
