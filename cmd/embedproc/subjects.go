package main

import (
	"github.com/spf13/cobra"
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List the subjects available for routing",
	RunE:  runSubjects,
}

func runSubjects(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	names := a.router.Subjects()
	if len(names) == 0 {
		cmd.Println("No subject mapping configured; all queries use the default namespace.")
		return nil
	}
	for _, name := range names {
		cmd.Println(name)
	}
	return nil
}
