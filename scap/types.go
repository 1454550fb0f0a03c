// Package scap inspects SCAP source files: source data streams, XCCDF
// checklists and XCCDF tailoring files.
package scap

import "encoding/xml"

// The structs below intentionally carry no XML namespace so that both the
// XCCDF 1.1 and 1.2 vocabularies are accepted.

type dataStreamCollection struct {
	XMLName     xml.Name     `xml:"data-stream-collection"`
	DataStreams []dataStream `xml:"data-stream"`
	Components  []component  `xml:"component"`
}

type dataStream struct {
	ID         string `xml:"id,attr"`
	Checklists struct {
		Refs []componentRef `xml:"component-ref"`
	} `xml:"checklists"`
}

type componentRef struct {
	ID   string `xml:"id,attr"`
	Href string `xml:"href,attr"`
}

type component struct {
	ID        string         `xml:"id,attr"`
	Benchmark *benchmarkElem `xml:"Benchmark"`
}

type benchmarkElem struct {
	XMLName  xml.Name      `xml:"Benchmark"`
	ID       string        `xml:"id,attr"`
	Statuses []statusElem  `xml:"status"`
	Profiles []profileElem `xml:"Profile"`
}

type tailoringElem struct {
	XMLName  xml.Name      `xml:"Tailoring"`
	ID       string        `xml:"id,attr"`
	Profiles []profileElem `xml:"Profile"`
}

type statusElem struct {
	Date  string `xml:"date,attr"`
	Value string `xml:",chardata"`
}

type profileElem struct {
	ID          string     `xml:"id,attr"`
	Extends     string     `xml:"extends,attr"`
	Title       []textElem `xml:"title"`
	Description []htmlElem `xml:"description"`
}

type textElem struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

// htmlElem keeps the raw inner XML, XCCDF descriptions may embed XHTML.
type htmlElem struct {
	Lang  string `xml:"lang,attr"`
	Inner string `xml:",innerxml"`
}
