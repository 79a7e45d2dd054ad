package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracewireio/tracewire/pkg/trace"
)

func TestProtocolFirstMatchWins(t *testing.T) {
	assert.Equal(t, "SQL", Protocol("com.acme.repository.UserRepository", "findById", ""))
	assert.Equal(t, "HTTP", Protocol("com.acme.web.UserController", "doGet", ""))
	assert.Equal(t, "gRPC", Protocol("com.acme.grpc.GreeterStub", "sayHello", ""))
	assert.Equal(t, "Async", Protocol("com.acme.reactive.Flux", "map", ""))
	assert.Equal(t, "", Protocol("com.acme.util.StringUtils", "trim", ""))
}

func TestProtocolSQLVerbInFirstArgument(t *testing.T) {
	// "com.acme.dao.GenericDao"/"execute" matches none of the labeled
	// substring/method rules on its own; only the SQL-verb argument
	// trigger identifies this as SQL.
	assert.Equal(t, "SQL", Protocol("com.acme.dao.GenericDao", "execute", "SELECT * FROM users"))
}

func TestProtocolSQLVerbArgumentBeatsLaterLabelSubstring(t *testing.T) {
	// "consumer" in the module name would match Kafka's row (table
	// position 4) if SQL's argument trigger were checked only as a
	// last-resort fallback after the whole table. Since SQL is row 1,
	// its argument trigger must win this collision instead.
	assert.Equal(t, "SQL", Protocol("com.acme.consumer.BatchUpdater", "run", "UPDATE accounts SET balance = 0"))
}

func TestInvocationTypeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, trace.Internal, InvocationType("com.acme.util", "trim"))
}

func TestInvocationTypeRules(t *testing.T) {
	assert.Equal(t, trace.APIEntry, InvocationType("com.acme.web.UserController", "create"))
	assert.Equal(t, trace.EventHandler, InvocationType("com.acme.listeners.Foo", "onMessage"))
	assert.Equal(t, trace.Scheduled, InvocationType("com.acme.jobs.CronJob", "run"))
	assert.Equal(t, trace.Callback, InvocationType("com.acme.Foo", "apply"))
	// "onComplete" matches EVENT_HANDLER's "on" before CALLBACK's
	// "complete" is ever reached: table order breaks the tie.
	assert.Equal(t, trace.EventHandler, InvocationType("com.acme.Foo", "onComplete"))
}
