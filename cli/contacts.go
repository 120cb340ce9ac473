// ABOUTME: Contact CLI commands
// ABOUTME: Manages the local contacts a sync pushes to and pulls from the CRM
package cli

import (
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/transform"
)

// ContactsCommand routes contacts subcommands.
func ContactsCommand(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("contacts requires a subcommand (add, list, update)")
	}
	switch args[0] {
	case "add":
		return AddContactCommand(app, args[1:])
	case "list":
		return ListContactsCommand(app, args[1:])
	case "update":
		return UpdateContactCommand(app, args[1:])
	default:
		return fmt.Errorf("unknown contacts command: %s", args[0])
	}
}

// AddContactCommand adds a new local contact.
func AddContactCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	first := fs.String("first", "", "First name")
	last := fs.String("last", "", "Last name")
	email := fs.String("email", "", "Email address")
	phone := fs.String("phone", "", "Phone number")
	company := fs.String("company", "", "Company name")
	title := fs.String("title", "", "Job title")
	tags := fs.String("tags", "", "Comma separated tags")
	_ = fs.Parse(args)

	if *first == "" && *last == "" && *email == "" {
		return fmt.Errorf("--first, --last or --email is required")
	}

	contact := &models.Contact{
		FirstName: *first,
		LastName:  *last,
		Phone:     transform.NormalizePhoneOrKeep(*phone),
		Company:   *company,
		Title:     *title,
		Tags:      splitTags(*tags),
	}
	if *email != "" {
		if !transform.ValidEmail(*email) {
			return fmt.Errorf("invalid email address %q", *email)
		}
		contact.Email = transform.NormalizeEmail(*email)
	}

	if err := db.CreateContact(app.DB, app.OrgID, contact); err != nil {
		return err
	}

	app.printf("✓ Contact created: %s (ID: %s)\n", displayName(contact), contact.ID)
	return nil
}

// UpdateContactCommand edits a local contact. Flags must come before the id.
func UpdateContactCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	first := fs.String("first", "", "First name")
	last := fs.String("last", "", "Last name")
	email := fs.String("email", "", "Email address")
	phone := fs.String("phone", "", "Phone number")
	company := fs.String("company", "", "Company name")
	title := fs.String("title", "", "Job title")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("contact id is required")
	}
	id := fs.Arg(0)

	contact, err := db.GetContact(app.DB, app.OrgID, id)
	if err != nil {
		return err
	}
	if contact == nil {
		return fmt.Errorf("contact not found: %s", id)
	}

	if *first != "" {
		contact.FirstName = *first
	}
	if *last != "" {
		contact.LastName = *last
	}
	if *email != "" {
		if !transform.ValidEmail(*email) {
			return fmt.Errorf("invalid email address %q", *email)
		}
		contact.Email = transform.NormalizeEmail(*email)
	}
	if *phone != "" {
		contact.Phone = transform.NormalizePhoneOrKeep(*phone)
	}
	if *company != "" {
		contact.Company = *company
	}
	if *title != "" {
		contact.Title = *title
	}

	if err := db.UpdateContact(app.DB, app.OrgID, contact); err != nil {
		return err
	}
	app.printf("✓ Contact updated: %s\n", displayName(contact))
	return nil
}

// ListContactsCommand prints the local contacts.
func ListContactsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	_ = fs.Parse(args)

	contacts, err := db.ListContacts(app.DB, app.OrgID)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		app.printf("No contacts found\n")
		return nil
	}

	w := tabwriter.NewWriter(app.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE\tCOMPANY")
	for _, c := range contacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.FullName(), c.Email, c.Phone, c.Company)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	app.printf("\n%d contact(s)\n", len(contacts))
	return nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func displayName(c *models.Contact) string {
	if name := c.FullName(); name != "" {
		return name
	}
	return c.Email
}
