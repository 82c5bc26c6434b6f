// ia32run - command-line entry point for the IA-32 execution engine.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package main

import (
	"context"
	"fmt"
	"os"

	"intuitionengine/engine"
)

func banner() {
	fmt.Println("IA-32 PE execution engine")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("License: GPLv3 or later")
}

func usage() {
	fmt.Println("Usage: ia32run [-sandbox dir] [-trace] <path-to-exe-or-dll>")
}

func main() {
	banner()

	var (
		sandboxDir = "./sandbox"
		trace      = os.Getenv("IA32VM_TRACE") == "1"
		imagePath  string
	)

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-sandbox":
			if i+1 >= len(args) {
				usage()
				os.Exit(1)
			}
			i++
			sandboxDir = args[i]
		case "-trace":
			trace = true
		default:
			imagePath = args[i]
		}
	}

	if imagePath == "" {
		usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Printf("failed to read %s: %v\n", imagePath, err)
		os.Exit(1)
	}

	e, err := engine.New(engine.Config{SandboxDir: sandboxDir})
	if err != nil {
		fmt.Printf("failed to construct engine: %v\n", err)
		os.Exit(1)
	}

	e.SetDialogRenderer(newEbitenDialog())
	if beeper, berr := newOtoBeeper(); berr == nil {
		e.SetBeepPlayer(beeper)
	}
	if trace {
		e.EnableTrace(256)
	}

	if err := e.LoadImage(data); err != nil {
		fmt.Printf("failed to load image: %v\n", err)
		os.Exit(1)
	}

	if err := e.ResolveImports(context.Background()); err != nil {
		fmt.Printf("failed to resolve imports: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Running %s\n", imagePath)
	result, err := e.ExecuteExport()
	if err != nil {
		fmt.Printf("execution fault at EIP=0x%08X after %d instructions: %v\n",
			e.EIP(), e.InstructionCount(), err)
		os.Exit(1)
	}

	if trace && e.Trace != nil {
		fmt.Printf("Executed %d instructions, last %d traced:\n", e.InstructionCount(), len(e.Trace.Recent()))
		for _, entry := range e.Trace.Recent() {
			fmt.Println("  " + entry.Disassemble(e.Mem))
		}
	}
	fmt.Printf("Process exited, EAX=0x%08X\n", result)
}
