package oscap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/slok/scapd/internal/model"
)

var xccdfNamespaces = map[string]bool{
	"http://checklists.nist.gov/xccdf/1.1": true,
	"http://checklists.nist.gov/xccdf/1.2": true,
}

// Profile is an XCCDF profile choice.
type Profile struct {
	ID    string
	Title string
}

// ProfileChoices returns the XCCDF profiles found in the input and tailoring contents,
// tailoring profiles override input ones with the same ID.
func ProfileChoices(input, tailoring model.Content) ([]Profile, error) {
	profiles := map[string]string{}

	for _, c := range []model.Content{input, tailoring} {
		if !c.IsSet() {
			continue
		}
		src, err := c.Source()
		if err != nil {
			return nil, err
		}
		if err := scrapeProfiles(src, profiles); err != nil {
			return nil, err
		}
	}

	res := make([]Profile, 0, len(profiles))
	for id, title := range profiles {
		res = append(res, Profile{ID: id, Title: title})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res, nil
}

type xccdfProfile struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title"`
}

func scrapeProfiles(src []byte, dst map[string]string) error {
	dec := xml.NewDecoder(bytes.NewReader(src))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not parse XML: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Profile" || !xccdfNamespaces[se.Name.Space] {
			continue
		}

		var p xccdfProfile
		if err := dec.DecodeElement(&p, &se); err != nil {
			return fmt.Errorf("could not parse profile: %w", err)
		}
		if p.ID != "" {
			dst[p.ID] = p.Title
		}
	}
}
