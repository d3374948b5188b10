package fixture

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Suite is the content of a fixture file.
type Suite struct {
	Target   string
	Names    []string
	Fixtures []Fixture
}

// fileSpec mirrors the on-disk format. The yaml tags serve YAML files, the
// json tags serve CUE decoding.
type fileSpec struct {
	Target   string        `yaml:"target,omitempty" json:"target,omitempty"`
	Fixtures []fixtureSpec `yaml:"fixtures" json:"fixtures"`
}

type fixtureSpec struct {
	Name         string            `yaml:"name,omitempty" json:"name,omitempty"`
	Preparation  []requestSpec     `yaml:"preparation,omitempty" json:"preparation,omitempty"`
	Expectations []expectationSpec `yaml:"expectations,omitempty" json:"expectations,omitempty"`
}

type requestSpec struct {
	Payload    *string `yaml:"payload,omitempty" json:"payload,omitempty"`
	PayloadHex *string `yaml:"payload_hex,omitempty" json:"payload_hex,omitempty"`
	Gas        uint64  `yaml:"gas,omitempty" json:"gas,omitempty"`
	Value      uint64  `yaml:"value,omitempty" json:"value,omitempty"`
}

type expectationSpec struct {
	Request  requestSpec   `yaml:"request" json:"request"`
	Response *responseSpec `yaml:"response,omitempty" json:"response,omitempty"`
}

type responseSpec struct {
	Payload    *string `yaml:"payload,omitempty" json:"payload,omitempty"`
	PayloadHex *string `yaml:"payload_hex,omitempty" json:"payload_hex,omitempty"`
}

// LoadFile reads a fixture file. The format follows the extension: .yaml
// and .yml are decoded strictly with unknown fields rejected, .cue is
// validated against the fixture schema first.
func LoadFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var doc fileSpec
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &doc)
	case ".cue":
		err = decodeCUE(path, data, &doc)
	default:
		err = fmt.Errorf("unsupported fixture file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	suite, err := doc.suite()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return suite, nil
}

func decodeYAML(data []byte, doc *fileSpec) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func decodeCUE(path string, data []byte, doc *fileSpec) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling fixture schema: %w", err)
	}

	file := ctx.CompileBytes(data, cue.Filename(path))
	if err := file.Err(); err != nil {
		return fmt.Errorf("building CUE value: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#File")).Unify(file)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validating against fixture schema: %w", err)
	}
	if err := value.Decode(doc); err != nil {
		return fmt.Errorf("decoding CUE value: %w", err)
	}
	return nil
}

func (s fileSpec) suite() (*Suite, error) {
	if len(s.Fixtures) == 0 {
		return nil, errors.New("fixtures: at least one fixture is required")
	}

	suite := &Suite{Target: s.Target}
	for i, fs := range s.Fixtures {
		name := fs.Name
		if name == "" {
			name = fmt.Sprintf("fixture-%d", i)
		}

		f, err := fs.fixture()
		if err != nil {
			return nil, fmt.Errorf("fixtures[%d] (%s): %w", i, name, err)
		}
		suite.Names = append(suite.Names, name)
		suite.Fixtures = append(suite.Fixtures, f)
	}
	return suite, nil
}

func (fs fixtureSpec) fixture() (Fixture, error) {
	var f Fixture
	for i, rs := range fs.Preparation {
		req, err := rs.request()
		if err != nil {
			return Fixture{}, fmt.Errorf("preparation[%d]: %w", i, err)
		}
		f.Preparation = append(f.Preparation, req)
	}
	for i, es := range fs.Expectations {
		req, err := es.Request.request()
		if err != nil {
			return Fixture{}, fmt.Errorf("expectations[%d].request: %w", i, err)
		}
		resp := Any()
		if es.Response != nil {
			payload, err := decodePayload(es.Response.Payload, es.Response.PayloadHex)
			if err != nil {
				return Fixture{}, fmt.Errorf("expectations[%d].response: %w", i, err)
			}
			if payload != nil {
				resp = Exact(payload)
			}
		}
		f.Expectations = append(f.Expectations, Expectation{Request: req, Response: resp})
	}
	return f, nil
}

func (rs requestSpec) request() (Request, error) {
	payload, err := decodePayload(rs.Payload, rs.PayloadHex)
	if err != nil {
		return Request{}, err
	}
	return Request{Payload: payload, Gas: rs.Gas, Value: rs.Value}, nil
}

// decodePayload returns nil when neither form is given. An explicitly empty
// payload decodes to an empty, non-nil slice.
func decodePayload(text, hexText *string) ([]byte, error) {
	switch {
	case text != nil && hexText != nil:
		return nil, errors.New("payload and payload_hex are mutually exclusive")
	case text != nil:
		return append([]byte{}, *text...), nil
	case hexText != nil:
		b, err := hex.DecodeString(*hexText)
		if err != nil {
			return nil, fmt.Errorf("payload_hex: %w", err)
		}
		return append([]byte{}, b...), nil
	}
	return nil, nil
}
