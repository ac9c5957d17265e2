package script

import (
	"bufio"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode/utf8"

	"db-reconcile/internal/datadiff"
	"db-reconcile/internal/schema"
)

// Row files stream one element per statement:
//
//	<rows table="T" type="update">
//	  <update>
//	    <set><col name="qty">10</col></set>
//	    <where><col name="id">1</col></where>
//	  </update>
//	</rows>

func openXMLRows(w *bufio.Writer, table schema.TableIdentifier, kind datadiff.Kind) {
	w.WriteString(xml.Header)
	fmt.Fprintf(w, "<rows table=\"%s\" type=\"%s\">\n", attr(table.Name), kind)
}

func closeXMLRows(w *bufio.Writer) {
	w.WriteString("</rows>\n")
}

func writeXMLStatement(w *bufio.Writer, stmt *datadiff.Statement, cdata bool) error {
	fmt.Fprintf(w, "  <%s>\n", stmt.Kind)
	switch stmt.Kind {
	case datadiff.KindInsert:
		writeCols(w, "    ", stmt.Values, cdata)
	case datadiff.KindUpdate:
		w.WriteString("    <set>\n")
		writeCols(w, "      ", stmt.Values, cdata)
		w.WriteString("    </set>\n    <where>\n")
		writeCols(w, "      ", stmt.Key, cdata)
		w.WriteString("    </where>\n")
	case datadiff.KindDelete:
		w.WriteString("    <where>\n")
		writeCols(w, "      ", stmt.Key, cdata)
		w.WriteString("    </where>\n")
	}
	_, err := fmt.Fprintf(w, "  </%s>\n", stmt.Kind)
	return err
}

func writeCols(w *bufio.Writer, indent string, cols []datadiff.ColumnValue, cdata bool) {
	for _, cv := range cols {
		w.WriteString(indent)
		fmt.Fprintf(w, `<col name="%s"`, attr(cv.Column))
		v := cv.Value
		switch {
		case v.IsNull:
			w.WriteString(` null="true"/>` + "\n")
		case v.Binary:
			w.WriteString(` encoding="hex">` + v.Text + "</col>\n")
		case !isXMLText(v.Text):
			// UTF-8 bytes of text XML cannot carry
			w.WriteString(` encoding="hex">` + hex.EncodeToString([]byte(v.Text)) + "</col>\n")
		case cdata:
			w.WriteString(">")
			writeCDATA(w, v.Text)
			w.WriteString("</col>\n")
		default:
			w.WriteString(">")
			xml.EscapeText(w, []byte(v.Text))
			w.WriteString("</col>\n")
		}
	}
}

// writeCDATA splits the text at every "]]>" so the section cannot be closed
// early.
func writeCDATA(w *bufio.Writer, s string) {
	w.WriteString("<![CDATA[")
	w.WriteString(strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>"))
	w.WriteString("]]>")
}

// isXMLText reports whether s is valid UTF-8 made only of characters
// allowed in an XML document.
func isXMLText(s string) bool {
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				return false
			}
		}
		switch {
		case r == 0x09 || r == 0x0A || r == 0x0D:
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

func attr(s string) string {
	var sb strings.Builder
	xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

type xmlDataDiff struct {
	XMLName   xml.Name     `xml:"data-diff"`
	Reference string       `xml:"reference,attr,omitempty"`
	Target    string       `xml:"target,attr,omitempty"`
	Summary   []xmlMapping `xml:"summary>mapping"`
	Tables    []xmlTable   `xml:"files>table"`
	Warnings  []string     `xml:"warnings>warning,omitempty"`
}

type xmlMapping struct {
	Reference string `xml:"reference-table"`
	Target    string `xml:"target-table"`
}

type xmlTable struct {
	Name    string    `xml:"name,attr"`
	Files   []xmlFile `xml:"file-name"`
	Comment string    `xml:",comment"`
}

type xmlFile struct {
	Type string `xml:"type,attr"`
	Name string `xml:",chardata"`
}

func (e *Emitter) writeMainXML() error {
	doc := xmlDataDiff{Reference: e.opts.Reference, Target: e.opts.Target, Warnings: e.warnings}
	for _, m := range e.mappings {
		doc.Summary = append(doc.Summary, xmlMapping{Reference: m.Reference.String(), Target: m.Target.String()})
	}

	// one element per table, sections of the same table merged in run order
	index := make(map[string]int)
	for _, s := range e.sections {
		key := s.table.Key()
		i, ok := index[key]
		if !ok {
			i = len(doc.Tables)
			index[key] = i
			doc.Tables = append(doc.Tables, xmlTable{Name: s.table.Name})
		}
		for _, k := range s.kinds {
			if a := s.files[k]; a != nil {
				doc.Tables[i].Files = append(doc.Tables[i].Files, xmlFile{Type: k.String(), Name: a.name})
			}
		}
	}
	for i := range doc.Tables {
		if len(doc.Tables[i].Files) == 0 {
			doc.Tables[i].Comment = " no changes needed "
		}
	}

	a, err := createArtifact(e.MainFile())
	if err != nil {
		return err
	}
	a.w.WriteString(xml.Header)
	enc := xml.NewEncoder(a.w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		a.close()
		return fmt.Errorf("failed to encode %s: %w", a.name, err)
	}
	a.w.WriteString("\n")
	if err := a.close(); err != nil {
		return err
	}
	e.produced = append(e.produced, a.path)
	return nil
}
