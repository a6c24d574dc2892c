// Package association loads level-3 association documents.
//
// An association enumerates which exposures play which role (reference PSF
// versus science target) for one combined output product. The document is
// read-only input: it is loaded once per pipeline run and discarded after the
// member lists have been extracted.
package association

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Exposure type tags recognised by the coronagraphic pipeline. Matching is
// case-insensitive; members with any other tag are skipped.
const (
	ExpTypePSF     = "PSF"
	ExpTypeScience = "SCIENCE"
)

// ProductTypePlaceholder is the token in a product name template that is
// substituted with a product type tag when deriving an output file name.
const ProductTypePlaceholder = "{product_type}"

// Member is one exposure entry of a product.
type Member struct {
	ExpName string `json:"expname"`
	ExpType string `json:"exptype"`
}

// Product is one combined output product and its ordered member exposures.
// Name is a template containing ProductTypePlaceholder.
type Product struct {
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

// Association is a loaded association document.
type Association struct {
	AsnType  string    `json:"asn_type"`
	AsnRule  string    `json:"asn_rule"`
	Program  string    `json:"program"`
	Products []Product `json:"products"`
}

// Load reads and parses the association document at path.
func Load(path string) (*Association, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read association %s", path)
	}

	asn := &Association{}
	if err := json.Unmarshal(raw, asn); err != nil {
		return nil, errors.Wrapf(err, "unable to parse association %s", path)
	}

	return asn, nil
}

// ProductName substitutes tag for the product type placeholder in the
// product's name template.
func (p *Product) ProductName(tag string) string {
	return strings.ReplaceAll(p.Name, ProductTypePlaceholder, tag)
}

// Partition classifies every member by exposure type into reference PSF and
// science target file lists, preserving member order. Unrecognised exposure
// types are not an error, they are simply left out of both lists.
func (p *Product) Partition() (psf, targ []string) {
	for _, m := range p.Members {
		switch strings.ToUpper(m.ExpType) {
		case ExpTypePSF:
			psf = append(psf, m.ExpName)
		case ExpTypeScience:
			targ = append(targ, m.ExpName)
		}
	}

	return psf, targ
}
