package compiler

import (
	"os"
	"path/filepath"

	"evsc/pkg/ident"
)

// loader expands include directives into a single flat declaration list.
// Each file is loaded at most once, so diamond includes contribute their
// declarations a single time and include cycles terminate.
type loader struct {
	idents *ident.Interner
	rep    *Reporter
	loaded map[string]bool
}

// LoadProgram reads the file at path, parses it, and recursively splices in
// every included file. Include paths resolve relative to the including
// file's directory. Source text is registered on the Reporter so later
// diagnostics can carry line and column positions.
func LoadProgram(path string, in *ident.Interner, rep *Reporter) ([]Root, error) {
	l := &loader{idents: in, rep: rep, loaded: make(map[string]bool)}
	return l.load(path)
}

func (l *loader) load(path string) ([]Root, error) {
	path = filepath.Clean(path)
	if l.loaded[path] {
		return nil, nil
	}
	l.loaded[path] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Diagnostic{Msg: err.Error()}
	}
	src := string(data)
	l.rep.AddFile(path, src)

	tokens, err := Lex(src)
	if err != nil {
		if d, ok := err.(*Diagnostic); ok {
			d.File = path
		}
		return nil, err
	}
	roots, err := Parse(tokens, path, l.idents)
	if err != nil {
		return nil, err
	}

	var out []Root
	for _, root := range roots {
		inc, ok := root.(*IncludeDecl)
		if !ok {
			out = append(out, root)
			continue
		}
		target := inc.Path
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		included, err := l.load(target)
		if err != nil {
			return nil, err
		}
		out = append(out, included...)
	}
	return out, nil
}
