package service

import (
	"fides/internal/vc"
)

// PresentationDefinition is the DIF presentation definition served to
// wallets, one input descriptor per requested credential type.
type PresentationDefinition struct {
	ID               string            `json:"id"`
	InputDescriptors []InputDescriptor `json:"input_descriptors"`
}

type InputDescriptor struct {
	ID          string      `json:"id"`
	Format      Format      `json:"format"`
	Constraints Constraints `json:"constraints"`
}

type Format struct {
	JwtVcJson AlgList `json:"jwt_vc_json"`
}

type AlgList struct {
	Alg []string `json:"alg"`
}

type Constraints struct {
	Fields []FieldConstraint `json:"fields"`
}

type FieldConstraint struct {
	Path   []string `json:"path"`
	Filter Filter   `json:"filter"`
}

type Filter struct {
	Type    string `json:"type"`
	Pattern string `json:"pattern"`
}

func newInputDescriptor(t vc.Type, version vc.DataModelVersion) InputDescriptor {
	return InputDescriptor{
		ID:     t.String(),
		Format: Format{JwtVcJson: AlgList{Alg: []string{"RSA"}}},
		Constraints: Constraints{
			Fields: []FieldConstraint{{
				Path:   []string{vc.ClaimPath(vc.FieldType, version)},
				Filter: Filter{Type: "string", Pattern: t.Name()},
			}},
		},
	}
}
