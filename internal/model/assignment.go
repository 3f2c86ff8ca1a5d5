package model

// Assignment merges several raw committer identities under one canonical
// key. The API groups them per key; each assigned name has its own ID so it
// can be deleted individually.
type Assignment struct {
	Key           string         `json:"key"`
	AssignedNames []AssignedName `json:"assignedNames"`
}

type AssignedName struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateAssignment is the POST body for /apiV1/repository/{id}/assignment.
// One request assigns one raw name to a key.
type CreateAssignment struct {
	Key          string `json:"key"`
	AssignedName string `json:"assignedName"`
}
