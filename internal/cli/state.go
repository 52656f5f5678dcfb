package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stateEnvironment string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and modify recorded state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List units in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show attributes of a single unit",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a unit from state (does not destroy)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.PersistentFlags().StringVar(&stateEnvironment, "env", "dev", "Target environment")
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveProject(nil)
	if err != nil {
		return err
	}
	store, err := openStore(wd, stateEnvironment)
	if err != nil {
		return err
	}

	s, err := store.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(s.Units) == 0 {
		fmt.Println("No units in state.")
		return nil
	}

	fmt.Printf("State version: %d, serial: %d, lineage: %s\n\n", s.Version, s.Serial, s.Lineage)
	for _, us := range s.Units {
		fmt.Printf("  %s (%s, provider: %s, status: %s)\n", us.Name, us.Kind, us.Provider, us.Status)
	}
	fmt.Printf("\nTotal: %d unit(s)\n", len(s.Units))

	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveProject(nil)
	if err != nil {
		return err
	}
	store, err := openStore(wd, stateEnvironment)
	if err != nil {
		return err
	}

	s, err := store.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	us := s.Unit(args[0])
	if us == nil {
		return fmt.Errorf("unit %s not found in state", args[0])
	}

	fmt.Printf("# %s\n", us.Name)
	fmt.Printf("  kind     = %s\n", us.Kind)
	fmt.Printf("  provider = %s\n", us.Provider)
	fmt.Printf("  status   = %s\n", us.Status)

	if len(us.Dependencies) > 0 {
		fmt.Printf("  depends  = %v\n", us.Dependencies)
	}

	if len(us.Params) > 0 {
		fmt.Println("\n  Params:")
		for k, v := range us.Params {
			fmt.Printf("    %s = %v\n", k, v)
		}
	}

	if len(us.Outputs) > 0 {
		fmt.Println("\n  Outputs:")
		for k, v := range us.Outputs {
			fmt.Printf("    %s = %v\n", k, v)
		}
	}

	if us.ParamsHash != "" {
		fmt.Printf("\n  params_hash = %s\n", us.ParamsHash)
	}
	if us.Error != "" {
		fmt.Printf("\n  error = %s\n", us.Error)
	}

	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveProject(nil)
	if err != nil {
		return err
	}
	store, err := openStore(wd, stateEnvironment)
	if err != nil {
		return err
	}

	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	s, err := store.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if s.Unit(args[0]) == nil {
		return fmt.Errorf("unit %s not found in state", args[0])
	}
	s.Remove(args[0])
	s.Serial++

	if err := store.Write(cmd.Context(), s); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("Removed %s from state (unit was NOT destroyed)\n", args[0])
	return nil
}
