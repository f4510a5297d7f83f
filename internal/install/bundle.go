package install

import (
	"path/filepath"

	"github.com/beevik/etree"
)

// BundleVersion reads CFBundleShortVersionString from an application
// bundle's XML Info.plist. It returns "" when the plist is missing, binary
// encoded, or has no such key.
func BundleVersion(bundle string) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(filepath.Join(bundle, "Contents", "Info.plist")); err != nil {
		return ""
	}

	dict := doc.FindElement("./plist/dict")
	if dict == nil {
		return ""
	}

	children := dict.ChildElements()
	for i, el := range children {
		if el.Tag != "key" || el.Text() != "CFBundleShortVersionString" {
			continue
		}
		if i+1 < len(children) && children[i+1].Tag == "string" {
			return children[i+1].Text()
		}
		return ""
	}
	return ""
}
