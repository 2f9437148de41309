package middle

import "strings"

// substitute mangles a DDL/DML template the way set_prefix_and_tbls does in
// _examples/original_source/middle-pgsql.cpp:
//
//	%p  -> opts.Prefix
//	%t  -> opts.Tablespace.Data
//	%i  -> opts.Tablespace.Index
//	%m  -> "UNLOGGED" if opts.Unlogged, else ""
//
// Any run of text inside {...} is dropped entirely unless at least one of
// the four substitutions inside it produced non-empty output. Braces
// themselves never appear in the result. This lets a single template
// express "...{USING INDEX TABLESPACE %i}..." that vanishes cleanly when no
// index tablespace is configured, rather than requiring a second template
// per option combination.
func substitute(tmpl string, opts Options) string {
	var out strings.Builder
	var brace strings.Builder
	inBrace := false
	braceCopied := false

	// emitLiteral copies verbatim template text; it never marks the
	// enclosing brace region as kept. emitSubst copies the result of one of
	// the four %-substitutions, the only output that counts toward
	// braceCopied.
	emitLiteral := func(s string) {
		if inBrace {
			brace.WriteString(s)
		} else {
			out.WriteString(s)
		}
	}
	emitSubst := func(s string) {
		if inBrace {
			brace.WriteString(s)
			if s != "" {
				braceCopied = true
			}
		} else {
			out.WriteString(s)
		}
	}

	i := 0
	for i < len(tmpl) {
		switch {
		case tmpl[i] == '{':
			inBrace = true
			braceCopied = false
			brace.Reset()
			i++
		case tmpl[i] == '}':
			if braceCopied {
				out.WriteString(brace.String())
			}
			inBrace = false
			i++
		case tmpl[i] == '%' && i+1 < len(tmpl):
			switch tmpl[i+1] {
			case 'p':
				emitSubst(opts.Prefix)
				i += 2
			case 't':
				emitSubst(opts.Tablespace.Data)
				i += 2
			case 'i':
				emitSubst(opts.Tablespace.Index)
				i += 2
			case 'm':
				if opts.Unlogged {
					emitSubst("UNLOGGED")
				}
				i += 2
			default:
				emitLiteral(tmpl[i : i+1])
				i++
			}
		default:
			emitLiteral(tmpl[i : i+1])
			i++
		}
	}
	return out.String()
}

// tableName returns the prefixed name of the given bare table name (e.g.
// "nodes" -> "%p_nodes" -> "osm2pgsql_nodes"), the same %p_<table> pattern
// the DDL templates in store.go use to refer to the three staging tables.
func tableName(opts Options, bare string) string {
	return substitute("%p_"+bare, opts)
}
