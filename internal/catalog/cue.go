package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// schema constrains catalog files.
const schema = `
#Entry: {
	hidden: bool | *false
	title?: string
}
sinkTypes: [string]: #Entry
`

// LoadError reports an invalid catalog file.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// LoadCUE reads a catalog from a .cue file or a directory of them:
//
//	sinkTypes: {
//		webhook: {title: "Webhook"}
//		"internal-audit": {hidden: true}
//	}
func LoadCUE(path string) (Static, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("catalog not found: %v", err)}
	}

	cfg := &load.Config{Dir: filepath.Dir(path)}
	args := []string{filepath.Base(path)}
	if info.IsDir() {
		cfg.Dir = path
		if args, err = cueFiles(path); err != nil {
			return nil, &LoadError{Message: fmt.Sprintf("scanning catalog directory: %v", err)}
		}
		if len(args) == 0 {
			return nil, &LoadError{Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Message: "no CUE instances loaded"}
	}
	if err := instances[0].Err; err != nil {
		return nil, cueError("loading catalog", err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(instances[0])
	return decode(ctx, value)
}

// cueFiles returns the names of the .cue files directly inside dir, sorted.
func cueFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	return names, nil
}

// CompileCUE parses catalog source text.
func CompileCUE(src string) (Static, error) {
	ctx := cuecontext.New()
	return decode(ctx, ctx.CompileString(src, cue.Filename("catalog.cue")))
}

func decode(ctx *cue.Context, value cue.Value) (Static, error) {
	if err := value.Err(); err != nil {
		return nil, cueError("building catalog", err)
	}

	unified := ctx.CompileString(schema).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError("invalid catalog", err)
	}

	out := Static{}
	types := unified.LookupPath(cue.ParsePath("sinkTypes"))
	if !types.Exists() {
		return out, nil
	}
	iter, err := types.Fields()
	if err != nil {
		return nil, cueError("iterating sink types", err)
	}
	for iter.Next() {
		entry := Entry{Type: iter.Selector().Unquoted()}
		v := iter.Value()

		if entry.Hidden, err = v.LookupPath(cue.ParsePath("hidden")).Bool(); err != nil {
			return nil, cueError("sink type "+entry.Type, err)
		}
		if title := v.LookupPath(cue.ParsePath("title")); title.Exists() {
			if entry.Title, err = title.String(); err != nil {
				return nil, cueError("sink type "+entry.Type, err)
			}
		}
		out[entry.Type] = entry
	}
	return out, nil
}

func cueError(context string, err error) *LoadError {
	le := &LoadError{Message: fmt.Sprintf("%s: %v", context, err)}
	if errs := errors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
		le.Message = fmt.Sprintf("%s: %s", context, errs[0].Error())
	}
	return le
}
