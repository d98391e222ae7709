package ledger

// Authorization predicates. These are pure relationship checks; the calling
// operation decides which predicate applies and surfaces failures as
// AuthorizationError.

// IsCreator reports whether caller created the survey.
func IsCreator(s *Survey, caller Principal) bool {
	return caller != "" && s.Creator == caller
}

// IsRespondentOrCreator reports whether caller is the given respondent or
// the survey's creator. This is the predicate gating decryption requests.
func IsRespondentOrCreator(s *Survey, respondent, caller Principal) bool {
	if caller == "" {
		return false
	}
	return caller == respondent || IsCreator(s, caller)
}
