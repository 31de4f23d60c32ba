package users

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/memtensor/userdesk/pkg/errors"
)

// ProfileService is the part of Client a ProfileEditor needs
type ProfileService interface {
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateUser(ctx context.Context, id string, changes map[string]interface{}) (*User, error)
}

// editable are the text fields a profile form can change
var editable = []string{"name", "email", "bio", "phone", "website"}

// ProfileEditor holds the edit buffer for one user's profile. The profile
// is fetched once; later Loads are no-ops until Reload is called.
type ProfileEditor struct {
	mu  sync.Mutex
	svc ProfileService
	id  string

	original  *User
	draft     map[string]string
	interests []string
	problems  map[string]string
}

// NewProfileEditor creates an editor for user id
func NewProfileEditor(svc ProfileService, id string) *ProfileEditor {
	return &ProfileEditor{svc: svc, id: id, problems: map[string]string{}}
}

// ID returns the id of the edited user
func (e *ProfileEditor) ID() string { return e.id }

// Load fetches the profile if it has not been loaded yet
func (e *ProfileEditor) Load(ctx context.Context) error {
	e.mu.Lock()
	loaded := e.original != nil
	e.mu.Unlock()
	if loaded {
		return nil
	}
	return e.Reload(ctx)
}

// Reload fetches the profile and discards unsaved edits
func (e *ProfileEditor) Reload(ctx context.Context) error {
	user, err := e.svc.GetUser(ctx, e.id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset(user)
	return nil
}

func (e *ProfileEditor) reset(user *User) {
	e.original = user
	e.draft = fieldsOf(user)
	e.interests = slices.Clone(user.Interests)
	e.problems = map[string]string{}
}

func fieldsOf(u *User) map[string]string {
	return map[string]string{
		"name":    u.Name,
		"email":   u.Email,
		"bio":     u.Bio,
		"phone":   u.Phone,
		"website": u.Website,
	}
}

// Loaded reports whether the profile has been fetched
func (e *ProfileEditor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.original != nil
}

// SetField stores a sanitized value for field and clears its error
func (e *ProfileEditor) SetField(field, value string) error {
	if !slices.Contains(editable, field) {
		return errors.NewInvalidInputError("field cannot be edited: " + field).WithDetail("field", field)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.original == nil {
		return errors.NewValidationError("profile is not loaded")
	}
	if field == "bio" {
		value = SanitizeBio(value)
	} else {
		value = SanitizeText(value)
	}
	e.draft[field] = value
	delete(e.problems, field)
	return nil
}

// SetInterests replaces the interest list. Entries are sanitized, and
// blanks and repeats are dropped.
func (e *ProfileEditor) SetInterests(interests []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.original == nil {
		return errors.NewValidationError("profile is not loaded")
	}
	out := make([]string, 0, len(interests))
	for _, in := range interests {
		in = SanitizeText(in)
		if in != "" && !slices.Contains(out, in) {
			out = append(out, in)
		}
	}
	e.interests = out
	return nil
}

// Validate checks the draft and returns the per-field errors
func (e *ProfileEditor) Validate() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validate()
}

func (e *ProfileEditor) validate() map[string]string {
	e.problems = ValidateFields(e.draft, ProfileRules)
	return copyMap(e.problems)
}

// Errors returns the field errors from the last validation, minus the
// fields edited since
func (e *ProfileEditor) Errors() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyMap(e.problems)
}

// Changes returns the fields whose draft differs from the loaded profile
func (e *ProfileEditor) Changes() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.changes()
}

func (e *ProfileEditor) changes() map[string]interface{} {
	changes := map[string]interface{}{}
	if e.original == nil {
		return changes
	}
	before := fieldsOf(e.original)
	for _, field := range editable {
		if e.draft[field] != before[field] {
			changes[field] = e.draft[field]
		}
	}
	if !slices.Equal(e.interests, e.original.Interests) {
		changes["interests"] = slices.Clone(e.interests)
	}
	return changes
}

// Dirty reports whether there are unsaved changes
func (e *ProfileEditor) Dirty() bool {
	return len(e.Changes()) > 0
}

// Draft returns the profile as currently edited
func (e *ProfileEditor) Draft() (User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.original == nil {
		return User{}, errors.NewValidationError("profile is not loaded")
	}
	u := *e.original
	u.Name = e.draft["name"]
	u.Email = e.draft["email"]
	u.Bio = e.draft["bio"]
	u.Phone = e.draft["phone"]
	u.Website = e.draft["website"]
	u.Interests = slices.Clone(e.interests)
	return u, nil
}

// Submit validates the draft and sends only the changed fields. With no
// changes nothing is sent and the loaded profile is returned.
func (e *ProfileEditor) Submit(ctx context.Context) (*User, error) {
	e.mu.Lock()
	if e.original == nil {
		e.mu.Unlock()
		return nil, errors.NewValidationError("profile is not loaded")
	}
	if problems := e.validate(); len(problems) > 0 {
		e.mu.Unlock()
		return nil, errors.NewValidationError("profile has invalid fields").WithDetail("fields", problems)
	}
	changes := e.changes()
	current := *e.original
	e.mu.Unlock()

	if len(changes) == 0 {
		return &current, nil
	}
	updated, err := e.svc.UpdateUser(ctx, e.id, changes)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset(updated)
	return updated, nil
}

// BioPreview renders the draft bio as HTML
func (e *ProfileEditor) BioPreview() (string, error) {
	e.mu.Lock()
	bio := e.draft["bio"]
	e.mu.Unlock()
	if strings.TrimSpace(bio) == "" {
		return "", nil
	}
	return RenderBioPreview(bio)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
