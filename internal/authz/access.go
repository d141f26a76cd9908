package authz

// CanAccessDocument decides read access to a document. The decision is a pure
// disjunction: public documents, ownership, a group id / group name / role
// name present in the document's access groups, or an ADMIN_ACCESS or
// DOCUMENT_FULL_ACCESS capability all grant access on their own. Evaluation
// short-circuits but no branch has priority over another.
//
// A document with IsPublic=false and no access groups is owner-private:
// only the creator and capability-bypass holders can see it.
func CanAccessDocument(doc DocumentDescriptor, sub Subject) bool {
	if doc.IsPublic {
		return true
	}
	if doc.CreatedByID != 0 && doc.CreatedByID == sub.UserID {
		return true
	}
	if sub.GroupID != "" && containsString(doc.AccessGroups, sub.GroupID) {
		return true
	}
	if sub.GroupName != "" && containsString(doc.AccessGroups, sub.GroupName) {
		return true
	}
	for _, roleName := range sub.RoleNames {
		if roleName != "" && containsString(doc.AccessGroups, roleName) {
			return true
		}
	}
	if sub.Capabilities.Has(CapabilityAdminAccess) || sub.Capabilities.Has(CapabilityDocumentFullAccess) {
		return true
	}
	return false
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
