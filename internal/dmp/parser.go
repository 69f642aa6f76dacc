// Package dmp maps machine-readable DMP documents onto the plan data model.
// The document shape follows the RDA common standard: a dmp object with a
// title, an optional dmp_id, a contact and a contributor list.
package dmp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/plan"
)

// document is the accepted submission envelope. Both the full API envelope
// ({"items":[{"dmp":{...}}]}) and a bare {"dmp":{...}} are accepted.
type document struct {
	Items []struct {
		DMP *dmpObject `json:"dmp"`
	} `json:"items"`
	DMP *dmpObject `json:"dmp"`
}

type dmpObject struct {
	Title        string   `json:"title"`
	DMPID        *docID   `json:"dmp_id"`
	Privacy      string   `json:"dmproadmap_privacy"`
	Contact      *person  `json:"contact"`
	Contributors []person `json:"contributor"`
}

type docID struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type person struct {
	Name        string       `json:"name"`
	Mbox        string       `json:"mbox"`
	Affiliation *affiliation `json:"affiliation"`
	ContactID   *docID       `json:"contact_id"`
	ContribID   *docID       `json:"contributor_id"`
	Roles       []string     `json:"role"`
}

type affiliation struct {
	Name string `json:"name"`
}

// PlanCreator is the plan storage the parser persists through. Satisfied by
// *plan.Store.
type PlanCreator interface {
	FindOrCreate(ctx context.Context, in plan.CreatePlanInput) (*plan.Plan, error)
}

// OrgResolver find-or-creates organisations named by contributor affiliations.
// Satisfied by *account.Store.
type OrgResolver interface {
	FindOrCreateOrg(ctx context.Context, name string) (*account.Org, error)
}

// Parser deserializes DMP documents into persisted plans and contributor
// lists. It satisfies plan.Parser.
type Parser struct {
	plans PlanCreator
	orgs  OrgResolver
}

// NewParser creates a parser backed by the given stores.
func NewParser(plans PlanCreator, orgs OrgResolver) *Parser {
	return &Parser{plans: plans, orgs: orgs}
}

// ExternalID extracts the document's DMP ID without persisting anything.
func (p *Parser) ExternalID(raw []byte) (scheme, value string, ok bool) {
	d, err := decode(raw)
	if err != nil || d.DMPID == nil || d.DMPID.Identifier == "" {
		return "", "", false
	}
	return d.DMPID.Type, d.DMPID.Identifier, true
}

// Deserialize maps the document onto a plan, persisting it with
// find-or-create semantics, and returns the document's contributors. The
// contact becomes the first contributor and carries the data_curation tag.
func (p *Parser) Deserialize(ctx context.Context, raw []byte) (*plan.Plan, []*account.Contributor, error) {
	d, err := decode(raw)
	if err != nil {
		return nil, nil, err
	}

	contributors, err := p.extractContributors(ctx, d)
	if err != nil {
		return nil, nil, err
	}

	in := plan.CreatePlanInput{
		Title:                   d.Title,
		PubliclyVisible:         d.Privacy == "public",
		OrganisationallyVisible: d.Privacy == "organisational",
	}
	if d.DMPID != nil && d.DMPID.Identifier != "" {
		in.ExternalScheme = d.DMPID.Type
		in.ExternalID = d.DMPID.Identifier
	}
	// The plan's organisation is the contact's.
	if len(contributors) > 0 && contributors[0].IsDataCuration() {
		in.OrgID = contributors[0].OrgID
	}

	persisted, err := p.plans.FindOrCreate(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return persisted, contributors, nil
}

// decode unwraps the envelope and validates the document shape.
func decode(raw []byte) (*dmpObject, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &plan.ParseError{Msg: "invalid JSON", Err: err}
	}

	d := doc.DMP
	if d == nil && len(doc.Items) > 0 {
		d = doc.Items[0].DMP
	}
	if d == nil {
		return nil, &plan.ParseError{Msg: "no dmp object in document"}
	}
	if strings.TrimSpace(d.Title) == "" {
		return nil, &plan.ParseError{Msg: "dmp title is required"}
	}
	return d, nil
}

// extractContributors converts the contact and contributor entries into
// account contributors, resolving affiliations to organisations. The contact
// is always first and tagged data_curation; a contributor entry sharing the
// contact's mbox is folded into it.
func (p *Parser) extractContributors(ctx context.Context, d *dmpObject) ([]*account.Contributor, error) {
	var out []*account.Contributor

	if d.Contact != nil && d.Contact.Mbox != "" {
		c, err := p.toContributor(ctx, d.Contact)
		if err != nil {
			return nil, err
		}
		c.Roles = append(c.Roles, account.RoleDataCuration)
		out = append(out, c)
	}

	for i := range d.Contributors {
		entry := &d.Contributors[i]
		if entry.Mbox == "" {
			continue
		}
		if len(out) > 0 && out[0].Email == entry.Mbox {
			continue
		}
		c, err := p.toContributor(ctx, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, nil
}

func (p *Parser) toContributor(ctx context.Context, entry *person) (*account.Contributor, error) {
	c := &account.Contributor{
		Name:  entry.Name,
		Email: entry.Mbox,
	}

	if entry.Affiliation != nil && strings.TrimSpace(entry.Affiliation.Name) != "" {
		org, err := p.orgs.FindOrCreateOrg(ctx, entry.Affiliation.Name)
		if err != nil {
			return nil, err
		}
		c.OrgID = org.ID
	}

	for _, id := range []*docID{entry.ContactID, entry.ContribID} {
		if id != nil && id.Identifier != "" {
			c.Identifiers = append(c.Identifiers, account.SchemeValue{
				Scheme: id.Type,
				Value:  id.Identifier,
			})
		}
	}

	for _, r := range entry.Roles {
		c.Roles = append(c.Roles, normalizeRole(r))
	}

	return c, nil
}

// normalizeRole maps CRediT-style role URIs onto plain tags, e.g.
// ".../contributor-roles/data-curation/" -> "data_curation".
func normalizeRole(r string) string {
	r = strings.Trim(r, "/")
	if idx := strings.LastIndex(r, "/"); idx >= 0 {
		r = r[idx+1:]
	}
	return strings.ReplaceAll(strings.ToLower(r), "-", "_")
}
