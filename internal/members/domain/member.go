package domain

import (
	"fmt"
	"strings"
	"time"
)

// Member is a document of the membres collection.
type Member struct {
	ID        string    `json:"id" firestore:"-"`
	Nom       string    `json:"nom" firestore:"nom"`
	Prenom    string    `json:"prenom" firestore:"prenom"`
	Email     string    `json:"email,omitempty" firestore:"email,omitempty"`
	Telephone string    `json:"telephone,omitempty" firestore:"telephone,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty" firestore:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty" firestore:"createdBy,omitempty"`
}

// Input is the writable part of a member.
type Input struct {
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
	Email     string `json:"email"`
	Telephone string `json:"telephone"`
}

// Normalize trims every field and checks that nom and prenom are set.
func (in *Input) Normalize() error {
	in.Nom = strings.TrimSpace(in.Nom)
	in.Prenom = strings.TrimSpace(in.Prenom)
	in.Email = strings.TrimSpace(in.Email)
	in.Telephone = strings.TrimSpace(in.Telephone)

	switch {
	case in.Nom == "" && in.Prenom == "":
		return fmt.Errorf("%w: nom et prenom requis", ErrInvalidMember)
	case in.Nom == "":
		return fmt.Errorf("%w: nom requis", ErrInvalidMember)
	case in.Prenom == "":
		return fmt.Errorf("%w: prenom requis", ErrInvalidMember)
	}
	return nil
}

// Summary is the member data attached to audit entries.
func (m Member) Summary() map[string]interface{} {
	return map[string]interface{}{
		"id":     m.ID,
		"nom":    m.Nom,
		"prenom": m.Prenom,
	}
}
