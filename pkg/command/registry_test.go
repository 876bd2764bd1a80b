package command

import (
	"context"
	"testing"

	"github.com/cometbot/comet/pkg/message"
)

type fakeCommand struct {
	prop  Property
	reply string
}

func (c *fakeCommand) Property() Property { return c.prop }

func (c *fakeCommand) Execute(ctx context.Context, env *Env) (*message.Wrapper, error) {
	return message.New().AppendText(c.reply), nil
}

func TestRegistryResolvesNameAndAliases(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeCommand{prop: Property{Name: "version", Aliases: []string{"v"}}}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	for _, name := range []string{"version", "v"} {
		if _, ok := r.Resolve(name); !ok {
			t.Fatalf("Resolve(%q) = false, want true", name)
		}
	}
	if _, ok := r.Resolve("ver"); ok {
		t.Fatal("Resolve of unregistered name should fail")
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeCommand{prop: Property{Name: "help"}})

	if err := r.Register(&fakeCommand{prop: Property{Name: "help"}}); err == nil {
		t.Fatal("duplicate name should be rejected")
	}
}

func TestRegistryRejectsConflictingAlias(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeCommand{prop: Property{Name: "version", Aliases: []string{"v"}}})

	if err := r.Register(&fakeCommand{prop: Property{Name: "vote", Aliases: []string{"v"}}}); err == nil {
		t.Fatal("alias conflicting with an existing alias should be rejected")
	}
	if err := r.Register(&fakeCommand{prop: Property{Name: "v"}}); err == nil {
		t.Fatal("name conflicting with an existing alias should be rejected")
	}
}

func TestRegistryPropertiesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeCommand{prop: Property{Name: "zeta"}})
	r.Register(&fakeCommand{prop: Property{Name: "alpha"}})

	props := r.Properties()
	if len(props) != 2 || props[0].Name != "alpha" || props[1].Name != "zeta" {
		t.Fatalf("Properties() order = %v, want alpha before zeta", props)
	}
}
