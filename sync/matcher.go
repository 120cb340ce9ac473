// ABOUTME: Contact matching for CRM records that have no sync state yet
// ABOUTME: Finds an unlinked local contact by email, then by phone, to avoid duplicates when adopting
package sync

import (
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/transform"
)

type ContactMatcher struct {
	byEmail map[string]*models.Contact
	byPhone map[string]*models.Contact
}

// NewContactMatcher creates a matcher from local contacts that are not
// linked to the provider yet.
func NewContactMatcher(contacts []*models.Contact) *ContactMatcher {
	m := &ContactMatcher{
		byEmail: make(map[string]*models.Contact),
		byPhone: make(map[string]*models.Contact),
	}
	for _, c := range contacts {
		m.add(c)
	}
	return m
}

// FindMatch looks for a local contact by email first, then by phone.
func (m *ContactMatcher) FindMatch(email, phone string) (*models.Contact, bool) {
	if key := transform.NormalizeEmail(email); key != "" {
		if c, ok := m.byEmail[key]; ok {
			return c, true
		}
	}
	if key := phoneKey(phone); key != "" {
		if c, ok := m.byPhone[key]; ok {
			return c, true
		}
	}
	return nil, false
}

// add indexes an unlinked local contact. The first contact registered for an
// email or phone keeps it. Contacts adopted during a run are already linked,
// so they are never added.
func (m *ContactMatcher) add(contact *models.Contact) {
	if key := transform.NormalizeEmail(contact.Email); key != "" {
		if _, taken := m.byEmail[key]; !taken {
			m.byEmail[key] = contact
		}
	}
	if key := phoneKey(contact.Phone); key != "" {
		if _, taken := m.byPhone[key]; !taken {
			m.byPhone[key] = contact
		}
	}
}

// Remove drops a contact once it is linked so a second CRM record cannot claim it.
func (m *ContactMatcher) Remove(contact *models.Contact) {
	for k, c := range m.byEmail {
		if c.ID == contact.ID {
			delete(m.byEmail, k)
		}
	}
	for k, c := range m.byPhone {
		if c.ID == contact.ID {
			delete(m.byPhone, k)
		}
	}
}

func phoneKey(phone string) string {
	if phone == "" {
		return ""
	}
	return transform.NormalizePhoneOrKeep(phone)
}
