// Command migrator copies a WeClapp tenant into the destination store.
package main

//go:generate swag init --generalInfo main.go --dir ./,../../internal/interfaces/http,../../internal/application/migration --output ../../docs --outputTypes go

//	@title			WeClapp Migration API
//	@version		1.0
//	@description	Queues cache, migrate and clear jobs of the WeClapp to ERPNext migration and reads the migration log.

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token issued by "migrator token". Format: "Bearer {token}"

func main() {
	Execute()
}
