/*
Package docdialect renders DynamoDB key conditions, filter and update
expressions for a single-table layout.

Every item carries PK and SK, derived from the entity's index map
(default "<Type>#{<Identity>}"), plus PK1/SK1 for the GSI1 type partition
and an EntityType discriminator. A plan whose filter holds the identity is
keyed on PK/SK; any other plan queries GSI1 on PK1 and leaves the remaining
fields in Condition.
*/
package docdialect
