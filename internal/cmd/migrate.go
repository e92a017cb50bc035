package cmd

import "fmt"

type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx *Context) error {
	runCtx := ctx.context()
	st, closer, err := openStore(runCtx, ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := st.InitSchema(runCtx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	_, err = fmt.Fprintln(ctx.Out, "migrations executed successfully")
	return err
}
