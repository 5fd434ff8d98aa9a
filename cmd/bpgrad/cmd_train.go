package main

import (
	"fmt"
	"strings"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/optim"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/born-ml/bpgrad/internal/train"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Gold tag sequences of the built-in tagging examples, over two tags.
var taggerSentences = [][]int{
	{1, 0, 1},
	{0, 1, 0, 1},
	{1, 0},
}

func newTrainCmd() *cobra.Command {
	var (
		flags    runFlags
		epochs   int
		lr       float64
		loss     string
		savePath string
		initPath string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Trains shared emission and transition weights of small tagging chains through belief propagation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if epochs < 1 {
				return errors.Errorf("bpgrad: --epochs must be positive, got %d", epochs)
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			const numTags = 2
			examples := taggerExamples(numTags, taggerSentences)
			theta := optim.NewParameter("theta", tensor.New(algebra.Real, numTags*(numTags+1)))
			trainer, err := train.New(theta, examples, train.Config{
				Epochs: epochs,
				Loss:   train.LossKind(strings.ToUpper(loss)),
				Adam:   optim.AdamConfig{LR: lr},
				BP:     opts,
			})
			if err != nil {
				return err
			}
			if initPath != "" {
				if err := trainer.LoadWeights(initPath); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			initial := trainer.Loss()
			losses := trainer.Run()
			fmt.Fprintf(out, "loss %s: %.6f -> %.6f after %d epochs\n", strings.ToUpper(loss), initial, losses[len(losses)-1], epochs)
			fmt.Fprintf(out, "weights %.4f\n", trainer.Weights())
			if savePath != "" {
				if err := trainer.Checkpoint(savePath); err != nil {
					return err
				}
				fmt.Fprintf(out, "saved %s\n", savePath)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&epochs, "epochs", 50, "number of epochs")
	cmd.Flags().Float64Var(&lr, "lr", 0.1, "Adam learning rate")
	cmd.Flags().StringVar(&loss, "loss", string(train.MSE), "training loss (MSE, EXPECTED_RECALL)")
	cmd.Flags().StringVar(&savePath, "save", "", "saves the trained weights to this .bpw file")
	cmd.Flags().StringVar(&initPath, "init", "", "starts from the weights of this .bpw file")
	return cmd
}
