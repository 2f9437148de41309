package middle

import "testing"

func TestSubstituteDropsEmptyBraceRegion(t *testing.T) {
	opts := Options{}
	got := substitute("Hello{ dear %i}!", opts)
	if got != "Hello!" {
		t.Fatalf("want %q, got %q", "Hello!", got)
	}
}

func TestSubstituteKeepsBraceRegionWhenFilled(t *testing.T) {
	opts := Options{}
	opts.Tablespace.Index = "John"
	got := substitute("Hello{ dear %i}!", opts)
	if got != "Hello dear John!" {
		t.Fatalf("want %q, got %q", "Hello dear John!", got)
	}
}

func TestSubstituteAllFourTokens(t *testing.T) {
	opts := Options{Prefix: "osm2pgsql", Unlogged: true}
	opts.Tablespace.Data = "fastdisk"
	opts.Tablespace.Index = "fastssd"
	got := substitute("CREATE %m TABLE %p_nodes (...) {USING INDEX TABLESPACE %i} {TABLESPACE %t};", opts)
	want := "CREATE UNLOGGED TABLE osm2pgsql_nodes (...) USING INDEX TABLESPACE fastssd TABLESPACE fastdisk;"
	if got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestSubstituteNoUnloggedLeavesBareSpace(t *testing.T) {
	opts := Options{}
	got := substitute("CREATE %m TABLE foo (...)", opts)
	want := "CREATE  TABLE foo (...)"
	if got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestTableNamePrefixesBareName(t *testing.T) {
	opts := Options{Prefix: "planet"}
	if got := tableName(opts, "ways"); got != "planet_ways" {
		t.Fatalf("want planet_ways, got %q", got)
	}
}
