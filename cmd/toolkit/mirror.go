package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fairraffle/go-rafflebridge/pkg/database"
	storeimpl "github.com/fairraffle/go-rafflebridge/pkg/store/impl"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Inspects the mirror database",
	Long:  `Inspects the mirror database used by the listeners and the relayer`,
	Args:  cobra.ExactArgs(1),
}

var mirrorCallbacksCmd = &cobra.Command{
	Use:   "callbacks",
	Short: "Lists pending callbacks",
	Long:  `Lists callbacks waiting to be relayed to the escrow contract`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := cmd.Flags().GetString("db")
		if err != nil {
			return errors.New("failed to parse db")
		}

		db, err := database.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening mirror database: %s", err)
		}
		mirror := storeimpl.New(db)
		defer func() { _ = mirror.Close() }()

		callbacks, err := mirror.ListPendingCallbacks(context.Background(), 100)
		if err != nil {
			return fmt.Errorf("list pending callbacks: %s", err)
		}

		if len(callbacks) == 0 {
			fmt.Println("No pending callbacks")
			return nil
		}
		for _, cb := range callbacks {
			fmt.Printf("#%d receiver=%s asset=%s erc721=%t amountOrNftId=%s claimableDelta=%s\n",
				cb.ID, cb.Receiver, cb.AssetContract, cb.IsERC721, cb.AmountOrNftID, cb.ClaimableDelta)
		}

		return nil
	},
}

var mirrorRaffleCmd = &cobra.Command{
	Use:   "raffle",
	Short: "Shows a raffle row from the mirror",
	Long:  `Shows a raffle row from the mirror by its numeric id`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := cmd.Flags().GetString("db")
		if err != nil {
			return errors.New("failed to parse db")
		}
		raffleID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid raffle id: %s", args[0])
		}

		db, err := database.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening mirror database: %s", err)
		}
		mirror := storeimpl.New(db)
		defer func() { _ = mirror.Close() }()

		r, err := mirror.GetRaffle(context.Background(), raffleID)
		if err != nil {
			return fmt.Errorf("get raffle: %s", err)
		}

		fmt.Printf("Asset contract:       %s (%s)\n", r.AssetContract, r.AssetName)
		fmt.Printf("Owner:                %s\n", r.Owner)
		fmt.Printf("Winner:               %s\n", r.Winner)
		fmt.Printf("State:                %s\n", r.State)
		fmt.Printf("Type:                 %s\n", r.Type)
		fmt.Printf("Currency:             %s (%s)\n", r.Currency, r.Symbol)
		fmt.Printf("Price per ticket:     %s\n", r.PricePerTicket)
		fmt.Printf("End timestamp:        %d\n", r.EndTimestamp)
		fmt.Printf("Tickets sold:         %d/%d (min %d)\n", r.TicketsSold, r.NumberOfTickets, r.MinimumTicketsSold)

		return nil
	},
}

var mirrorLotteryCmd = &cobra.Command{
	Use:   "lottery",
	Short: "Shows a lottery row from the mirror",
	Long:  `Shows a lottery row from the mirror by contract address and numeric id`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := cmd.Flags().GetString("db")
		if err != nil {
			return errors.New("failed to parse db")
		}
		lotteryID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid lottery id: %s", args[1])
		}

		db, err := database.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening mirror database: %s", err)
		}
		mirror := storeimpl.New(db)
		defer func() { _ = mirror.Close() }()

		l, err := mirror.GetLottery(context.Background(), args[0], lotteryID)
		if err != nil {
			return fmt.Errorf("get lottery: %s", err)
		}

		fmt.Printf("Contract:             %s\n", l.Contract)
		fmt.Printf("Status:               %s\n", l.Status)
		fmt.Printf("Winner:               %s\n", l.Winner)
		fmt.Printf("Tickets sold:         %d\n", l.TicketsSold)

		return nil
	},
}
