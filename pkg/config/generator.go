package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/template"
	"time"

	"github.com/cuemby/minicluster/pkg/types"
)

const (
	// SiteDocumentName is the main configuration document consumed by the
	// metadata service.
	SiteDocumentName = "metaserve-site.properties"

	// IdentityDocumentName holds only the authentication mode. The
	// runtime's identity layer discovers it independently of the site
	// document, so it must be a separate file.
	IdentityDocumentName = "runtime-identity.properties"
)

// Property documents are rendered from a fixed template over an ordered
// property list, so identical inputs always produce byte-identical files.
var docTemplate = template.Must(template.New("properties").Parse(
	"# Generated by minicluster; do not edit.\n{{range .}}{{.Name}}={{.Value}}\n{{end}}"))

type property struct {
	Name  string
	Value string
}

// Generator renders the configuration documents for one cluster. It is a
// pure function of its fields: no ambient state is consulted, and writing
// twice with the same inputs produces identical bytes.
type Generator struct {
	ScratchDir        string
	EventLogRetention time.Duration
	Security          *types.SecurityConfig
}

// SitePath returns where the site document is written.
func (g *Generator) SitePath() string {
	return filepath.Join(g.ScratchDir, SiteDocumentName)
}

// IdentityPath returns where the identity document is written.
func (g *Generator) IdentityPath() string {
	return filepath.Join(g.ScratchDir, IdentityDocumentName)
}

// WarehouseDir returns the local path backing the warehouse location
// advertised in the site document.
func (g *Generator) WarehouseDir() string {
	return filepath.Join(g.ScratchDir, "warehouse")
}

// WriteAll creates the scratch layout and writes both documents.
func (g *Generator) WriteAll() error {
	if err := os.MkdirAll(g.WarehouseDir(), 0o755); err != nil {
		return fmt.Errorf("creating warehouse dir: %w", err)
	}
	if err := g.WriteSiteDocument(); err != nil {
		return err
	}
	return g.WriteIdentityDocument()
}

// WriteSiteDocument renders the site document into the scratch directory.
func (g *Generator) WriteSiteDocument() error {
	return g.writeDocument(g.SitePath(), g.siteProperties())
}

// WriteIdentityDocument renders the identity document into the scratch
// directory.
func (g *Generator) WriteIdentityDocument() error {
	return g.writeDocument(g.IdentityPath(), g.identityProperties())
}

func (g *Generator) siteProperties() []property {
	secured := g.Security != nil

	props := []property{
		{"metastore.warehouse.dir", "file://" + g.WarehouseDir() + "/"},
		{"metastore.db.url", "mem:" + filepath.Join(g.ScratchDir, "metadb") + ";create=true"},
		{"metastore.event.ttl", fmt.Sprintf("%ds", int(g.EventLogRetention.Seconds()))},
		{"metastore.sasl.enabled", strconv.FormatBool(secured)},
	}
	if secured {
		props = append(props,
			property{"metastore.kerberos.keytab.file", g.Security.KeytabFile},
			property{"metastore.kerberos.principal", g.Security.ServicePrincipal},
			property{"metastore.rpc.protection", string(g.Security.ProtectionOrDefault())},
		)
	}
	return props
}

// identityProperties always states the authentication mode, even for the
// unauthenticated case. Omitting it would let a system-wide default leak
// into test clusters.
func (g *Generator) identityProperties() []property {
	mode := "simple"
	if g.Security != nil {
		mode = "kerberos"
	}
	return []property{{"runtime.security.authentication", mode}}
}

func (g *Generator) writeDocument(path string, props []property) error {
	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, props); err != nil {
		return fmt.Errorf("rendering %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
