package cli

import "testing"

func TestParseArgs_SingleDealership(t *testing.T) {
	t.Parallel()

	args, err := ParseArgs([]string{"-config", "lotsync.yaml", "-dealership", " sunrise-motors ", "-log-level", "debug"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if args.ConfigPath != "lotsync.yaml" || args.Dealership != "sunrise-motors" || args.LogLevel != "debug" {
		t.Errorf("unexpected args: %+v", args)
	}
	if args.All || args.Serve || !args.Enrich {
		t.Errorf("unexpected modes: %+v", args)
	}
	if len(args.RawArgs) != 6 {
		t.Errorf("RawArgs = %v", args.RawArgs)
	}
}

func TestParseArgs_AllWithoutEnrichment(t *testing.T) {
	t.Parallel()

	args, err := ParseArgs([]string{"-all", "-enrich=false"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !args.All || args.Enrich {
		t.Errorf("unexpected args: %+v", args)
	}
}

func TestParseArgs_Serve(t *testing.T) {
	t.Parallel()

	args, err := ParseArgs([]string{"-serve"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !args.Serve {
		t.Error("expected Serve")
	}
}

func TestParseArgs_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"no mode":       {},
		"blank dealer":  {"-dealership", "  "},
		"two modes":     {"-all", "-serve"},
		"unknown flag":  {"-target", "x"},
		"dealer + all":  {"-dealership", "d1", "-all"},
		"bad bool flag": {"-all=maybe"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseArgs(in); err == nil {
				t.Errorf("expected error for %v", in)
			}
		})
	}
}
