// gen-diagrams generates sample diagram outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/arbor/internal/diagram"
	"github.com/rendis/arbor/internal/xmldoc"
	"github.com/rendis/arbor/pkg/bt"
	"github.com/rendis/arbor/pkg/schema"
)

// A delivery robot built entirely from built-in nodes: plan a route unless
// one is cached, approach with retries, drop the payload. The retry gives
// the sample a failure branch so every status color shows up.
const deliveryXML = `<root BTCPP_format="4" main_tree_to_execute="Delivery">
  <BehaviorTree ID="Delivery">
    <Sequence name="delivery">
      <Action ID="SetBlackboard" name="set_target" key="target" value="dock_7"/>
      <Fallback name="ensure_route">
        <Condition ID="CheckBlackboard" name="route_cached" key="route"/>
        <Action ID="Script" name="plan_route" code="target + ':3'" output="route"/>
      </Fallback>
      <Decorator ID="RetryUntilSuccessful" name="approach" num_attempts="3">
        <Condition ID="ScriptCondition" name="arrived" code="len(route) > 9"/>
      </Decorator>
      <Action ID="AlwaysSuccess" name="drop_payload"/>
    </Sequence>
  </BehaviorTree>
</root>`

func main() {
	doc, err := xmldoc.Parse([]byte(deliveryXML))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
		os.Exit(1)
	}
	if result := bt.Validate(doc); !result.Valid() {
		fmt.Fprintf(os.Stderr, "validation error: %v\n", result.ToError())
		os.Exit(1)
	}

	builder := bt.NewBuilder(bt.NewRegistry())
	tree, err := builder.Build(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build error: %v\n", err)
		os.Exit(1)
	}

	// Tick to completion so the diagram carries a status overlay.
	status := tree.Tick()
	for i := 0; status == schema.StatusRunning && i < 16; i++ {
		status = tree.Tick()
	}
	fmt.Printf("tree finished with status %s\n\n", status)

	model, err := diagram.Build(tree)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diagram error: %v\n", err)
		os.Exit(1)
	}

	outDir := filepath.Join("docs", "assets")
	os.MkdirAll(outDir, 0o755)

	// ASCII
	ascii := diagram.RenderASCII(model)
	os.WriteFile(filepath.Join(outDir, "diagram-ascii.txt"), []byte(ascii), 0o644)
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	// Mermaid
	mermaid := diagram.RenderMermaid(model)
	os.WriteFile(filepath.Join(outDir, "diagram-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"), 0o644)
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	// Graphviz DOT
	dot := diagram.RenderDOT(model)
	os.WriteFile(filepath.Join(outDir, "diagram-dot.gv"), []byte(dot), 0o644)
	fmt.Println("=== DOT ===")
	fmt.Println(dot)

	// Image (PNG)
	png, imgErr := diagram.RenderImage(model)
	if imgErr != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", imgErr)
	} else {
		pngPath := filepath.Join(outDir, "diagram-sample.png")
		os.WriteFile(pngPath, png, 0o644)
		fmt.Printf("=== Image (PNG) ===\nWritten: %s (%d bytes)\n", pngPath, len(png))
	}
}
