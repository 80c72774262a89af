package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	grpc_adapter "github.com/JoeShih716/go-balance-desk/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-balance-desk/pkg/logger"
	grpcpool "github.com/JoeShih716/go-balance-desk/pkg/grpc"
)

const usage = `usage: balancectl [flags] <command> [args]

commands:
  get      <email>
  deposit  <email> <amount>
  withdraw <email> <amount> [status] [reason]
  limit    <email> <amount>        (0 removes the limit)
  remove   <email> <index>
  bench    <email> <amount> <count> <concurrency>
`

func main() {
	addr := flag.String("addr", "localhost:50051", "gRPC server address")
	adminKey := flag.String("admin-key", os.Getenv("BALANCE_ADMIN_KEY"), "admin key sent as x-admin-key")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	verbose := flag.Bool("v", false, "log every RPC")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	l, err := logger.New(level, true)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer l.Sync()

	pool := grpcpool.NewPool(
		grpcpool.WithInterceptor(grpcpool.LoggingInterceptor(l)),
		grpcpool.WithCallOptions(grpc.CallContentSubtype(grpc_adapter.CodecName)),
	)
	defer pool.Close()

	conn, err := pool.GetConnection(*addr)
	if err != nil {
		l.Fatal("did not connect", zap.Error(err))
	}
	client := grpc_adapter.NewBalanceAdminClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if *adminKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, grpc_adapter.AdminKeyMetadata, *adminKey)
	}

	cmd, email, rest := args[0], args[1], args[2:]
	var reply *grpc_adapter.AccountReply
	switch cmd {
	case "get":
		reply, err = client.GetAccount(ctx, &grpc_adapter.GetAccountRequest{Email: email})
	case "deposit", "withdraw":
		req := &grpc_adapter.UpdateBalanceRequest{Email: email, Type: cmd}
		req.Amount = mustDecimal(rest, 0)
		if len(rest) > 1 {
			req.Status = rest[1]
		}
		if len(rest) > 2 {
			req.Reason = rest[2]
		}
		reply, err = client.UpdateBalance(ctx, req)
	case "limit":
		reply, err = client.SetWithdrawalLimit(ctx, &grpc_adapter.SetWithdrawalLimitRequest{Email: email, Limit: mustDecimal(rest, 0)})
	case "remove":
		if len(rest) < 1 {
			log.Fatal("missing index")
		}
		index, perr := strconv.Atoi(rest[0])
		if perr != nil {
			log.Fatalf("invalid index %q: %v", rest[0], perr)
		}
		reply, err = client.RemoveEntry(ctx, &grpc_adapter.RemoveEntryRequest{Email: email, Index: index})
	case "bench":
		if len(rest) < 3 {
			log.Fatal("bench needs <amount> <count> <concurrency>")
		}
		count, perr := parsePositive("count", rest[1])
		if perr != nil {
			log.Fatal(perr)
		}
		concurrency, perr := parsePositive("concurrency", rest[2])
		if perr != nil {
			log.Fatal(perr)
		}
		bench(ctx, client, email, mustDecimal(rest, 0), count, concurrency)
		return
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}

	out, _ := json.MarshalIndent(reply, "", "  ")
	fmt.Println(string(out))
}

// parsePositive 解析正整數參數
func parsePositive(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", name, n)
	}
	return n, nil
}

func mustDecimal(args []string, i int) decimal.Decimal {
	if len(args) <= i {
		log.Fatal("missing amount")
	}
	d, err := decimal.NewFromString(args[i])
	if err != nil {
		log.Fatalf("invalid amount %q: %v", args[i], err)
	}
	return d
}

// bench 以固定併發量對同一帳戶連續存款，最後比對餘額
func bench(ctx context.Context, client *grpc_adapter.BalanceAdminClient, email string, amount decimal.Decimal, count, concurrency int) {
	before, err := client.GetAccount(ctx, &grpc_adapter.GetAccountRequest{Email: email})
	if err != nil {
		log.Fatalf("get account failed: %v", err)
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	sem := make(chan struct{}, concurrency)
	startTime := time.Now()
	for i := 0; i < count; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := client.UpdateBalance(ctx, &grpc_adapter.UpdateBalanceRequest{
				Email: email, Amount: amount, Type: grpc_adapter.TypeDeposit,
			}); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(startTime)

	after, err := client.GetAccount(ctx, &grpc_adapter.GetAccountRequest{Email: email})
	if err != nil {
		log.Fatalf("get account failed: %v", err)
	}
	ok := int64(count) - failed.Load()
	want := before.User.Balance.Add(amount.Mul(decimal.NewFromInt(ok)))

	fmt.Printf("Completed %d requests in %v (failed %d)\n", count, elapsed, failed.Load())
	fmt.Printf("TPS: %.2f\n", float64(count)/elapsed.Seconds())
	fmt.Printf("Balance: %s -> %s (expected %s)\n", before.User.Balance, after.User.Balance, want)
	if !after.User.Balance.Equal(want) {
		os.Exit(1)
	}
}
